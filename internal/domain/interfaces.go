package domain

import (
	"context"
	"time"
)

// Listing — одна запись листинга каталога webook, как её возвращает
// upstream API. StartingPrice приходит строкой и может быть пустым.
type Listing struct {
	UpstreamID       string
	UpstreamSystemID string
	Title            string
	Subtitle         string
	Slug             string
	TicketingURLSlug string
	ImageURL         string
	ImageTitle       string
	ImageSystemID    string
	StartingPrice    string
	CurrencyCode     string
	EventType        string
	OpenDateTime     time.Time
	CloseDateTime    *time.Time
	PublishedAt      time.Time
	ZoneTitle        string
	LocationTitle    string
	LocationCity     string
	CategoryTitle    string
	CategorySlug     string
}

// CatalogClient запрашивает страницу листинга событий, отсортированную
// от новых к старым.
type CatalogClient interface {
	EventListing(ctx context.Context, limit, skip int) ([]Listing, error)
}

// EventRepo управляет событиями и справочниками.
type EventRepo interface {
	ExistsByNaturalKey(ctx context.Context, key NaturalKey) (bool, error)
	CreateEvent(ctx context.Context, event Event) (Event, error)
	UpsertCategory(ctx context.Context, name string) (int64, error)
	UpsertArea(ctx context.Context, name string) (int64, error)
	UpsertClassification(ctx context.Context, name string) (int64, error)
}

// UserRepo возвращает подписчиков. Записи пользователей этой подсистемой
// не изменяются.
type UserRepo interface {
	FindInterested(ctx context.Context, categoryID, areaID int64) ([]User, error)
	ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]User, error)
	ListExpired(ctx context.Context, now time.Time, window time.Duration) ([]User, error)
}

// NotificationLogRepo ведёт журнал попыток доставки.
type NotificationLogRepo interface {
	Append(ctx context.Context, entry NotificationLogEntry) error
	StatsByRecipient(ctx context.Context, chatID int64) ([]NotificationStat, error)
}

// Sender отправляет одно отрисованное сообщение получателю.
// Ошибка возвращается без изменений, чтобы диспетчер записал её в журнал.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, grid [][]Button) error
	SendPhoto(ctx context.Context, chatID int64, imageURL, caption string, grid [][]Button) error
}

// Cache подавляет повторное выполнение действия в пределах TTL.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
}
