package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"webook-events-bot/internal/domain"
)

// Notifier ставит сервисное уведомление подписки в очередь доставки.
type Notifier interface {
	SendSubscriptionNotice(chatID int64, notice domain.SubscriptionNotice)
}

// Service проверяет сроки подписок и рассылает напоминания о продлении
// и уведомления об истечении. Повторные напоминания в пределах TTL
// подавляются через кэш — планировщик может дёргать проверку чаще,
// чем пользователю положено получать письма.
type Service struct {
	users    domain.UserRepo
	cache    domain.Cache
	notifier Notifier
	log      zerolog.Logger

	renewalWindow time.Duration
	expiredWindow time.Duration
	dedupTTL      time.Duration
	now           func() time.Time
}

// NewService создаёт сервис проверки подписок.
func NewService(users domain.UserRepo, cache domain.Cache, notifier Notifier, log zerolog.Logger, renewalWindow, expiredWindow, dedupTTL time.Duration) *Service {
	return &Service{
		users:         users,
		cache:         cache,
		notifier:      notifier,
		log:           log,
		renewalWindow: renewalWindow,
		expiredWindow: expiredWindow,
		dedupTTL:      dedupTTL,
		now:           time.Now,
	}
}

// CheckSubscriptions выполняет одну проверку: подписчикам с подпиской,
// истекающей в пределах окна продления, уходит напоминание, а тем, у
// кого она закончилась недавно, — уведомление об истечении.
func (s *Service) CheckSubscriptions(ctx context.Context) error {
	now := s.now().UTC()

	expiring, err := s.users.ListExpiring(ctx, now, s.renewalWindow)
	if err != nil {
		return fmt.Errorf("выборка истекающих подписок: %w", err)
	}
	for _, u := range expiring {
		s.sendOnce(u.ChatID, domain.NoticeRenewal)
	}

	expired, err := s.users.ListExpired(ctx, now, s.expiredWindow)
	if err != nil {
		return fmt.Errorf("выборка истёкших подписок: %w", err)
	}
	for _, u := range expired {
		s.sendOnce(u.ChatID, domain.NoticeExpired)
	}

	s.log.Info().Int("expiring", len(expiring)).Int("expired", len(expired)).Msg("subscription: проверка подписок завершена")
	return nil
}

func (s *Service) sendOnce(chatID int64, notice domain.SubscriptionNotice) {
	key := fmt.Sprintf("subscription:%s:%d", notice, chatID)
	err := s.cache.Once(key, s.dedupTTL, func() error {
		s.notifier.SendSubscriptionNotice(chatID, notice)
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int64("chat_id", chatID).Str("notice", string(notice)).Msg("subscription: не удалось отправить уведомление")
	}
}
