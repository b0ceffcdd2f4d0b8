package ingest

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"webook-events-bot/internal/domain"
	"webook-events-bot/internal/infra/metrics"
)

// defaultReference подставляется, когда каталог не прислал
// категорию, город или зону.
const defaultReference = "Default"

// Notifier получает уведомление о новом сохранённом событии.
type Notifier interface {
	NotifyUsersAboutEvent(ctx context.Context, event domain.Event) error
}

// Service опрашивает каталог по таймеру, отбрасывает уже известные
// события по натуральному ключу и сохраняет новые.
type Service struct {
	catalog  domain.CatalogClient
	events   domain.EventRepo
	notifier Notifier
	log      zerolog.Logger

	interval   time.Duration
	firstLimit int
	nextLimit  int
	firstDone  bool
}

// NewService создаёт сервис опроса каталога.
func NewService(catalog domain.CatalogClient, events domain.EventRepo, notifier Notifier, log zerolog.Logger, interval time.Duration, firstLimit, nextLimit int) *Service {
	return &Service{
		catalog:    catalog,
		events:     events,
		notifier:   notifier,
		log:        log,
		interval:   interval,
		firstLimit: firstLimit,
		nextLimit:  nextLimit,
	}
}

// Run выполняет первый цикл сразу и дальше опрашивает каталог по таймеру.
// Циклы не накладываются: следующий начинается только после завершения
// предыдущего. Ошибка цикла логируется и не останавливает опрос.
func (s *Service) Run(ctx context.Context) {
	if err := s.Poll(ctx); err != nil {
		s.log.Error().Err(err).Msg("ingest: цикл опроса завершился с ошибкой")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("ingest: опрос каталога остановлен")
			return
		case <-ticker.C:
			if err := s.Poll(ctx); err != nil {
				s.log.Error().Err(err).Msg("ingest: цикл опроса завершился с ошибкой")
			}
		}
	}
}

// Poll выполняет один цикл опроса: запрашивает страницу листинга и
// обрабатывает записи от старых к новым, чтобы порядок created_at
// совпадал с хронологией публикации.
func (s *Service) Poll(ctx context.Context) error {
	started := time.Now()
	defer func() {
		metrics.PollCycleSeconds.Observe(time.Since(started).Seconds())
	}()

	limit := s.nextLimit
	if !s.firstDone {
		limit = s.firstLimit
	}

	listings, err := s.catalog.EventListing(ctx, limit, 0)
	if err != nil {
		metrics.CatalogFetchErrors.Inc()
		return fmt.Errorf("запрос листинга: %w", err)
	}
	// Первый цикл состоялся, даже если ни одной записи не сохранили.
	s.firstDone = true

	var ingested int
	for i := len(listings) - 1; i >= 0; i-- {
		created, err := s.processListing(ctx, listings[i])
		if err != nil {
			// Ошибка одной записи не трогает остальные.
			s.log.Warn().Err(err).Str("title", listings[i].Title).Msg("ingest: запись листинга пропущена")
			continue
		}
		if created {
			ingested++
		}
	}

	s.log.Info().Int("fetched", len(listings)).Int("ingested", ingested).Msg("ingest: цикл опроса завершён")
	return nil
}

func (s *Service) processListing(ctx context.Context, listing domain.Listing) (bool, error) {
	event := eventFromListing(listing)

	exists, err := s.events.ExistsByNaturalKey(ctx, domain.NaturalKeyOf(event))
	if err != nil {
		return false, fmt.Errorf("проверка натурального ключа: %w", err)
	}
	if exists {
		metrics.EventsDuplicate.Inc()
		return false, nil
	}

	if event.CategoryID, err = s.events.UpsertCategory(ctx, orDefault(listing.CategoryTitle)); err != nil {
		return false, fmt.Errorf("категория: %w", err)
	}
	if event.AreaID, err = s.events.UpsertArea(ctx, orDefault(listing.LocationCity)); err != nil {
		return false, fmt.Errorf("город: %w", err)
	}
	if event.ClassificationID, err = s.events.UpsertClassification(ctx, orDefault(listing.ZoneTitle)); err != nil {
		return false, fmt.Errorf("зона: %w", err)
	}

	saved, err := s.events.CreateEvent(ctx, event)
	if err != nil {
		return false, fmt.Errorf("сохранение события: %w", err)
	}
	metrics.EventsIngested.Inc()
	s.log.Info().Int64("event_id", saved.ID).Str("name", saved.Name).Msg("ingest: сохранено новое событие")

	if err := s.notifier.NotifyUsersAboutEvent(ctx, saved); err != nil {
		// Событие уже сохранено, рассылку по нему не повторяем.
		s.log.Error().Err(err).Int64("event_id", saved.ID).Msg("ingest: не удалось поставить уведомления в очередь")
	}
	return true, nil
}

// eventFromListing переводит запись листинга в доменное событие.
// Цена парсится из строки, при пустом или нечисловом значении
// считается нулевой (бесплатное событие).
func eventFromListing(listing domain.Listing) domain.Event {
	price, err := strconv.ParseFloat(listing.StartingPrice, 64)
	if err != nil {
		price = 0
	}

	bookingSlug := listing.TicketingURLSlug
	if bookingSlug == "" {
		bookingSlug = listing.Slug
	}
	var bookingLink string
	if bookingSlug != "" {
		bookingLink = domain.EventBaseURL + bookingSlug
	}

	event := domain.Event{
		Name:        listing.Title,
		Description: listing.Subtitle,
		BookingLink: bookingLink,
		Price:       price,
		StartDate:   listing.OpenDateTime,
		PublishedAt: listing.PublishedAt,
		IsPublished: true,
		Meta: domain.EventMeta{
			UpstreamID:       listing.UpstreamID,
			UpstreamSystemID: listing.UpstreamSystemID,
			Slug:             listing.Slug,
			CurrencyCode:     listing.CurrencyCode,
			LocationTitle:    listing.LocationTitle,
			ImageURL:         listing.ImageURL,
			ImageTitle:       listing.ImageTitle,
			ImageSystemID:    listing.ImageSystemID,
			EventType:        listing.EventType,
		},
	}
	if listing.CloseDateTime != nil {
		event.EndDate = *listing.CloseDateTime
	}
	return event
}

func orDefault(name string) string {
	if name == "" {
		return defaultReference
	}
	return name
}
