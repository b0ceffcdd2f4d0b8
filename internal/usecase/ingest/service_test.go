package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"webook-events-bot/internal/domain"
	"webook-events-bot/internal/usecase/notify"
)

type fakeCatalog struct {
	listings []domain.Listing
	err      error
	limits   []int
}

func (f *fakeCatalog) EventListing(_ context.Context, limit, _ int) ([]domain.Listing, error) {
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.listings) {
		return f.listings[:limit], nil
	}
	return f.listings, nil
}

type fakeEventRepo struct {
	events     []domain.Event
	references map[string]int64
	nextRef    int64
	failCreate string
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{references: map[string]int64{}}
}

func (f *fakeEventRepo) ExistsByNaturalKey(_ context.Context, key domain.NaturalKey) (bool, error) {
	for _, e := range f.events {
		if domain.NaturalKeyOf(e).Matches(key) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventRepo) CreateEvent(_ context.Context, event domain.Event) (domain.Event, error) {
	if f.failCreate != "" && event.Name == f.failCreate {
		return domain.Event{}, errors.New("insert failed")
	}
	event.ID = int64(len(f.events) + 1)
	event.CreatedAt = time.Now().UTC()
	f.events = append(f.events, event)
	return event, nil
}

func (f *fakeEventRepo) upsert(kind, name string) (int64, error) {
	key := kind + ":" + name
	if id, ok := f.references[key]; ok {
		return id, nil
	}
	f.nextRef++
	f.references[key] = f.nextRef
	return f.nextRef, nil
}

func (f *fakeEventRepo) UpsertCategory(_ context.Context, name string) (int64, error) {
	return f.upsert("category", name)
}

func (f *fakeEventRepo) UpsertArea(_ context.Context, name string) (int64, error) {
	return f.upsert("area", name)
}

func (f *fakeEventRepo) UpsertClassification(_ context.Context, name string) (int64, error) {
	return f.upsert("classification", name)
}

type fakeNotifier struct {
	events []domain.Event
}

func (f *fakeNotifier) NotifyUsersAboutEvent(_ context.Context, event domain.Event) error {
	f.events = append(f.events, event)
	return nil
}

func listingFixture(title string, open time.Time) domain.Listing {
	return domain.Listing{
		UpstreamID:       "evt-" + title,
		UpstreamSystemID: "Event",
		Title:            title,
		Subtitle:         "описание " + title,
		Slug:             "slug-" + title,
		TicketingURLSlug: "tickets-" + title,
		ImageURL:         "https://img.example/" + title + ".jpg",
		StartingPrice:    "150",
		CurrencyCode:     "SAR",
		OpenDateTime:     open,
		PublishedAt:      open.Add(-24 * time.Hour),
		ZoneTitle:        "Main",
		LocationTitle:    "Boulevard",
		LocationCity:     "Riyadh",
		CategoryTitle:    "music",
	}
}

func newService(catalog *fakeCatalog, repo *fakeEventRepo, notifier *fakeNotifier) *Service {
	return NewService(catalog, repo, notifier, zerolog.Nop(), time.Minute, 10, 1)
}

func TestPollIngestsOldestFirst(t *testing.T) {
	base := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	// Каталог отдаёт от новых к старым.
	catalog := &fakeCatalog{listings: []domain.Listing{
		listingFixture("E3", base.Add(2*time.Hour)),
		listingFixture("E2", base.Add(time.Hour)),
		listingFixture("E1", base),
	}}
	repo := newFakeEventRepo()
	notifier := &fakeNotifier{}

	if err := newService(catalog, repo, notifier).Poll(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(repo.events) != 3 {
		t.Fatalf("ожидали 3 события, получили %d", len(repo.events))
	}
	for i, want := range []string{"E1", "E2", "E3"} {
		if repo.events[i].Name != want {
			t.Fatalf("позиция %d: ожидали %s, получили %s", i, want, repo.events[i].Name)
		}
	}
	if len(notifier.events) != 3 {
		t.Fatalf("ожидали 3 уведомления, получили %d", len(notifier.events))
	}
	if notifier.events[0].ID == 0 {
		t.Fatalf("уведомление должно содержать сохранённое событие с id")
	}
}

func TestPollIdempotent(t *testing.T) {
	base := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	catalog := &fakeCatalog{listings: []domain.Listing{listingFixture("E1", base)}}
	repo := newFakeEventRepo()
	notifier := &fakeNotifier{}
	svc := newService(catalog, repo, notifier)

	for i := 0; i < 3; i++ {
		if err := svc.Poll(context.Background()); err != nil {
			t.Fatalf("цикл %d: не ожидали ошибку: %v", i, err)
		}
	}

	if len(repo.events) != 1 {
		t.Fatalf("повторные циклы не должны дублировать событие, получили %d", len(repo.events))
	}
	if len(notifier.events) != 1 {
		t.Fatalf("рассылка должна запускаться один раз, получили %d", len(notifier.events))
	}
}

func TestPollNaturalKeyFieldChangeCreatesNewEvent(t *testing.T) {
	base := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	first := listingFixture("E1", base)
	catalog := &fakeCatalog{listings: []domain.Listing{first}}
	repo := newFakeEventRepo()
	svc := newService(catalog, repo, &fakeNotifier{})

	if err := svc.Poll(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	changed := first
	changed.StartingPrice = "200"
	catalog.listings = []domain.Listing{changed}
	if err := svc.Poll(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if len(repo.events) != 2 {
		t.Fatalf("изменение цены меняет натуральный ключ, ожидали 2 события, получили %d", len(repo.events))
	}
}

func TestPollRecordErrorDoesNotStopCycle(t *testing.T) {
	base := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	catalog := &fakeCatalog{listings: []domain.Listing{
		listingFixture("E3", base.Add(2*time.Hour)),
		listingFixture("E2", base.Add(time.Hour)),
		listingFixture("E1", base),
	}}
	repo := newFakeEventRepo()
	repo.failCreate = "E2"

	if err := newService(catalog, repo, &fakeNotifier{}).Poll(context.Background()); err != nil {
		t.Fatalf("ошибка одной записи не должна ронять цикл: %v", err)
	}

	if len(repo.events) != 2 {
		t.Fatalf("ожидали 2 сохранённых события, получили %d", len(repo.events))
	}
	if repo.events[0].Name != "E1" || repo.events[1].Name != "E3" {
		t.Fatalf("ожидали E1 и E3, получили %s и %s", repo.events[0].Name, repo.events[1].Name)
	}
}

func TestPollWindowShrinksAfterFirstCycle(t *testing.T) {
	catalog := &fakeCatalog{}
	svc := newService(catalog, newFakeEventRepo(), &fakeNotifier{})

	for i := 0; i < 3; i++ {
		if err := svc.Poll(context.Background()); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	if len(catalog.limits) != 3 || catalog.limits[0] != 10 || catalog.limits[1] != 1 || catalog.limits[2] != 1 {
		t.Fatalf("ожидали окна 10,1,1, получили %v", catalog.limits)
	}
}

func TestPollCatalogErrorKeepsFirstWindow(t *testing.T) {
	catalog := &fakeCatalog{err: errors.New("upstream down")}
	svc := newService(catalog, newFakeEventRepo(), &fakeNotifier{})

	if err := svc.Poll(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку цикла")
	}

	catalog.err = nil
	if err := svc.Poll(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// Стартовое окно сохраняется, пока листинг ни разу не получен.
	if catalog.limits[0] != 10 || catalog.limits[1] != 10 {
		t.Fatalf("ожидали окна 10,10, получили %v", catalog.limits)
	}
}

type stubUsers struct {
	users []domain.User
}

func (s *stubUsers) FindInterested(context.Context, int64, int64) ([]domain.User, error) {
	return s.users, nil
}

func (s *stubUsers) ListExpiring(context.Context, time.Time, time.Duration) ([]domain.User, error) {
	return nil, nil
}

func (s *stubUsers) ListExpired(context.Context, time.Time, time.Duration) ([]domain.User, error) {
	return nil, nil
}

type stubJournal struct {
	mu      sync.Mutex
	entries []domain.NotificationLogEntry
}

func (s *stubJournal) Append(_ context.Context, entry domain.NotificationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubJournal) StatsByRecipient(context.Context, int64) ([]domain.NotificationStat, error) {
	return nil, nil
}

func (s *stubJournal) all() []domain.NotificationLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NotificationLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

type stubSender struct {
	mu   sync.Mutex
	sent []int64
}

func (s *stubSender) SendText(_ context.Context, chatID int64, _ string, _ [][]domain.Button) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, chatID)
	return nil
}

func (s *stubSender) SendPhoto(_ context.Context, chatID int64, _, _ string, _ [][]domain.Button) error {
	return s.SendText(nil, chatID, "", nil)
}

func (s *stubSender) recipients() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.sent))
	copy(out, s.sent)
	return out
}

func waitDispatcher(t *testing.T, d *notify.Service) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if d.QueueLen() == 0 && d.Idle() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("очередь доставки не опустела")
}

// Сквозной сценарий: два цикла опроса одной и той же записи дают одно
// сохранённое событие, одну доставку подходящему подписчику и одну
// успешную запись журнала.
func TestPollDeliversToInterestedUser(t *testing.T) {
	base := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	catalog := &fakeCatalog{listings: []domain.Listing{listingFixture("E1", base)}}
	repo := newFakeEventRepo()
	users := &stubUsers{users: []domain.User{
		{ID: 1, ChatID: 101, IsSubscribed: true},
		{ID: 2, ChatID: 102, IsSubscribed: true, IsBlocked: true},
		{ID: 3, ChatID: 103, IsSubscribed: false},
	}}
	journal := &stubJournal{}
	sender := &stubSender{}

	dispatcher := notify.NewService(users, journal, sender, zerolog.Nop(), time.Millisecond, 3, 0)
	defer dispatcher.Stop()
	svc := NewService(catalog, repo, dispatcher, zerolog.Nop(), time.Minute, 10, 1)

	for i := 0; i < 2; i++ {
		if err := svc.Poll(context.Background()); err != nil {
			t.Fatalf("цикл %d: не ожидали ошибку: %v", i, err)
		}
	}
	waitDispatcher(t, dispatcher)

	if len(repo.events) != 1 {
		t.Fatalf("повторный цикл не должен дублировать событие, получили %d", len(repo.events))
	}
	if got := sender.recipients(); len(got) != 1 || got[0] != 101 {
		t.Fatalf("доставка должна уйти только подходящему подписчику: %v", got)
	}
	entries := journal.all()
	if len(entries) != 1 {
		t.Fatalf("ожидали 1 запись журнала, получили %d", len(entries))
	}
	e := entries[0]
	if !e.Success || e.ChatID != 101 || e.Type != domain.NotificationEvent || e.EventID == nil || *e.EventID != repo.events[0].ID {
		t.Fatalf("запись журнала не совпала: %+v", e)
	}
}

func TestEventFromListing(t *testing.T) {
	base := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	listing := listingFixture("E1", base)
	close := base.Add(4 * time.Hour)
	listing.CloseDateTime = &close

	event := eventFromListing(listing)
	if event.BookingLink != "https://webook.com/event/tickets-E1" {
		t.Fatalf("ссылка бронирования должна строиться из ticketingUrlSlug, получили %q", event.BookingLink)
	}
	if event.Price != 150 {
		t.Fatalf("ожидали цену 150, получили %v", event.Price)
	}
	if !event.EndDate.Equal(close) {
		t.Fatalf("дата окончания не совпала: %v", event.EndDate)
	}

	listing.TicketingURLSlug = ""
	listing.StartingPrice = "не число"
	event = eventFromListing(listing)
	if event.BookingLink != "https://webook.com/event/slug-E1" {
		t.Fatalf("при отсутствии ticketingUrlSlug ссылка строится из slug, получили %q", event.BookingLink)
	}
	if event.Price != 0 {
		t.Fatalf("нечисловая цена должна давать 0, получили %v", event.Price)
	}
}
