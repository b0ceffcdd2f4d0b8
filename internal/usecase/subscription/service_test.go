package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"webook-events-bot/internal/domain"
)

type fakeUserRepo struct {
	expiring []domain.User
	expired  []domain.User
	err      error

	expiringWindow time.Duration
	expiredWindow  time.Duration
}

func (f *fakeUserRepo) FindInterested(context.Context, int64, int64) ([]domain.User, error) {
	return nil, nil
}

func (f *fakeUserRepo) ListExpiring(_ context.Context, _ time.Time, within time.Duration) ([]domain.User, error) {
	f.expiringWindow = within
	return f.expiring, f.err
}

func (f *fakeUserRepo) ListExpired(_ context.Context, _ time.Time, window time.Duration) ([]domain.User, error) {
	f.expiredWindow = window
	return f.expired, f.err
}

// memCache повторяет семантику Once: ключ ставится до вызова fn и
// снимается при её ошибке.
type memCache struct {
	keys map[string]bool
}

func newMemCache() *memCache {
	return &memCache{keys: map[string]bool{}}
}

func (c *memCache) Once(key string, _ time.Duration, fn func() error) error {
	if c.keys[key] {
		return nil
	}
	c.keys[key] = true
	if err := fn(); err != nil {
		delete(c.keys, key)
		return err
	}
	return nil
}

type sentNotice struct {
	chatID int64
	notice domain.SubscriptionNotice
}

type fakeNotifier struct {
	sent []sentNotice
}

func (f *fakeNotifier) SendSubscriptionNotice(chatID int64, notice domain.SubscriptionNotice) {
	f.sent = append(f.sent, sentNotice{chatID: chatID, notice: notice})
}

func newService(users *fakeUserRepo, cache *memCache, notifier *fakeNotifier) *Service {
	return NewService(users, cache, notifier, zerolog.Nop(), 72*time.Hour, 24*time.Hour, 24*time.Hour)
}

func TestCheckSubscriptions(t *testing.T) {
	users := &fakeUserRepo{
		expiring: []domain.User{{ID: 1, ChatID: 101}},
		expired:  []domain.User{{ID: 2, ChatID: 102}},
	}
	notifier := &fakeNotifier{}
	svc := newService(users, newMemCache(), notifier)

	if err := svc.CheckSubscriptions(context.Background()); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	if users.expiringWindow != 72*time.Hour || users.expiredWindow != 24*time.Hour {
		t.Fatalf("окна выборки не совпали: %v / %v", users.expiringWindow, users.expiredWindow)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("ожидали 2 уведомления, получили %d", len(notifier.sent))
	}
	if notifier.sent[0] != (sentNotice{101, domain.NoticeRenewal}) {
		t.Fatalf("первое уведомление не совпало: %+v", notifier.sent[0])
	}
	if notifier.sent[1] != (sentNotice{102, domain.NoticeExpired}) {
		t.Fatalf("второе уведомление не совпало: %+v", notifier.sent[1])
	}
}

func TestCheckSubscriptionsDeduplicates(t *testing.T) {
	users := &fakeUserRepo{expiring: []domain.User{{ID: 1, ChatID: 101}}}
	notifier := &fakeNotifier{}
	svc := newService(users, newMemCache(), notifier)

	for i := 0; i < 3; i++ {
		if err := svc.CheckSubscriptions(context.Background()); err != nil {
			t.Fatalf("проверка %d: не ожидали ошибку: %v", i, err)
		}
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("повторные проверки не должны дублировать напоминание, получили %d", len(notifier.sent))
	}
}

func TestCheckSubscriptionsRepoError(t *testing.T) {
	users := &fakeUserRepo{err: errors.New("db down")}
	svc := newService(users, newMemCache(), &fakeNotifier{})

	if err := svc.CheckSubscriptions(context.Background()); err == nil {
		t.Fatalf("ожидали ошибку при недоступной БД")
	}
}
