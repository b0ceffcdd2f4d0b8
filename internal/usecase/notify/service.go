package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"webook-events-bot/internal/domain"
	"webook-events-bot/internal/infra/metrics"
)

// QueueItem — одно уведомление в очереди доставки.
type QueueItem struct {
	ID       string
	ChatID   int64
	EventID  *int64
	Type     domain.NotificationType
	SubType  string
	Text     string
	ImageURL string
	Grid     [][]domain.Button
	Attempts int
}

// Service подбирает получателей и доставляет уведомления через
// внутреннюю FIFO-очередь. Очередь живёт в памяти процесса и теряется
// при перезапуске, дисковой персистентности у неё нет.
type Service struct {
	users   domain.UserRepo
	journal domain.NotificationLogRepo
	sender  domain.Sender
	log     zerolog.Logger

	limiter     *rate.Limiter
	maxAttempts int
	adminChatID int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	queue  []*QueueItem
	active bool
}

// NewService создаёт диспетчер уведомлений. sendDelay — минимальный
// интервал между отправками, maxAttempts — суммарный лимит попыток
// на уведомление, включая первую.
func NewService(users domain.UserRepo, journal domain.NotificationLogRepo, sender domain.Sender, log zerolog.Logger, sendDelay time.Duration, maxAttempts int, adminChatID int64) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		users:       users,
		journal:     journal,
		sender:      sender,
		log:         log,
		limiter:     rate.NewLimiter(rate.Every(sendDelay), 1),
		maxAttempts: maxAttempts,
		adminChatID: adminChatID,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Stop прерывает доставку и дожидается завершения воркера. Уведомления,
// оставшиеся в очереди, теряются.
func (s *Service) Stop() {
	s.cancel()
	s.wg.Wait()
}

// NotifyUsersAboutEvent ставит уведомления о событии всем подходящим
// подписчикам. Пустой список получателей — штатная ситуация.
func (s *Service) NotifyUsersAboutEvent(ctx context.Context, event domain.Event) error {
	users, err := s.users.FindInterested(ctx, event.CategoryID, event.AreaID)
	if err != nil {
		return fmt.Errorf("подбор получателей: %w", err)
	}

	text, grid := EventMessage(event)
	items := make([]QueueItem, 0, len(users))
	for _, u := range users {
		// Фильтр выборки дублируется здесь: заблокированные и
		// неподписанные не получают уведомлений, что бы ни вернул репозиторий.
		if !u.IsSubscribed || u.IsBlocked {
			continue
		}
		eventID := event.ID
		items = append(items, QueueItem{
			ChatID:   u.ChatID,
			EventID:  &eventID,
			Type:     domain.NotificationEvent,
			Text:     text,
			ImageURL: event.Meta.ImageURL,
			Grid:     grid,
		})
	}
	if len(items) == 0 {
		s.log.Info().Int64("event_id", event.ID).Msg("notify: для события нет получателей")
		return nil
	}
	s.Enqueue(items...)
	s.log.Info().Int64("event_id", event.ID).Int("recipients", len(items)).Msg("notify: уведомления поставлены в очередь")
	return nil
}

// SendSubscriptionNotice ставит в очередь сервисное уведомление подписки.
func (s *Service) SendSubscriptionNotice(chatID int64, notice domain.SubscriptionNotice) {
	text, grid := SubscriptionMessage(notice)
	if text == "" {
		s.log.Warn().Str("notice", string(notice)).Msg("notify: неизвестный подтип уведомления подписки")
		return
	}
	s.Enqueue(QueueItem{
		ChatID:  chatID,
		Type:    domain.NotificationSubscription,
		SubType: string(notice),
		Text:    text,
		Grid:    grid,
	})
}

// NotifyAdmin ставит в очередь сообщение администратору. Если чат
// администратора не настроен, сообщение молча пропускается.
func (s *Service) NotifyAdmin(level AdminLevel, text string) {
	if s.adminChatID == 0 {
		return
	}
	s.Enqueue(QueueItem{
		ChatID:  s.adminChatID,
		Type:    domain.NotificationAdmin,
		SubType: string(level),
		Text:    AdminMessage(level, text),
	})
}

// Enqueue добавляет уведомления в хвост очереди и будит воркер,
// если он не активен.
func (s *Service) Enqueue(items ...QueueItem) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		item := items[i]
		s.queue = append(s.queue, &item)
	}
	metrics.QueueDepth.Set(float64(len(s.queue)))
	s.mu.Unlock()

	s.DrainIfIdle()
}

// DrainIfIdle запускает воркер доставки, если очередь не пуста и воркер
// ещё не работает. Одновременно работает не больше одного воркера,
// повторный вызов во время работы — no-op.
func (s *Service) DrainIfIdle() {
	s.mu.Lock()
	if s.active || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.drain()
}

func (s *Service) drain() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.active = false
			metrics.QueueDepth.Set(0)
			s.mu.Unlock()
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		metrics.QueueDepth.Set(float64(len(s.queue)))
		s.mu.Unlock()

		if err := s.limiter.Wait(s.ctx); err != nil {
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
			return
		}
		s.deliver(item)
	}
}

// deliver выполняет одну попытку отправки и пишет её исход в журнал.
// Неудачное уведомление возвращается в хвост очереди, пока не исчерпан
// лимит попыток.
func (s *Service) deliver(item *QueueItem) {
	item.Attempts++

	var err error
	if item.ImageURL != "" {
		err = s.sender.SendPhoto(s.ctx, item.ChatID, item.ImageURL, item.Text, item.Grid)
	} else {
		err = s.sender.SendText(s.ctx, item.ChatID, item.Text, item.Grid)
	}
	metrics.ObserveSendAttempt(string(item.Type), err)

	entry := domain.NotificationLogEntry{
		ChatID:  item.ChatID,
		EventID: item.EventID,
		Type:    item.Type,
		SubType: item.SubType,
		Success: err == nil,
		SentAt:  time.Now().UTC(),
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	if logErr := s.journal.Append(s.ctx, entry); logErr != nil {
		s.log.Error().Err(logErr).Str("item_id", item.ID).Msg("notify: не удалось записать журнал доставки")
	}

	if err == nil {
		return
	}

	if item.Attempts >= s.maxAttempts {
		metrics.NotificationsDropped.Inc()
		s.log.Warn().Err(err).Str("item_id", item.ID).Int64("chat_id", item.ChatID).Int("attempts", item.Attempts).Msg("notify: уведомление отброшено после исчерпания попыток")
		return
	}

	s.log.Warn().Err(err).Str("item_id", item.ID).Int("attempt", item.Attempts).Msg("notify: попытка отправки не удалась, уведомление вернётся в очередь")
	s.mu.Lock()
	s.queue = append(s.queue, item)
	metrics.QueueDepth.Set(float64(len(s.queue)))
	s.mu.Unlock()
}

// QueueLen возвращает текущую глубину очереди.
func (s *Service) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Idle сообщает, работает ли воркер доставки в данный момент.
func (s *Service) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.active
}
