package domain

import "time"

// EventBaseURL — базовый адрес страницы события каталога. От него
// строятся и ссылка бронирования, и кнопка со страницей события.
const EventBaseURL = "https://webook.com/event/"

// NotificationType различает виды уведомлений в журнале и очереди.
type NotificationType string

const (
	NotificationEvent        NotificationType = "event"
	NotificationSubscription NotificationType = "subscription"
	NotificationAdmin        NotificationType = "admin"
)

// SubscriptionNotice — подтип сервисного уведомления подписки.
type SubscriptionNotice string

const (
	NoticeWelcome SubscriptionNotice = "welcome"
	NoticeRenewal SubscriptionNotice = "renewal"
	NoticeExpired SubscriptionNotice = "expired"
	NoticeUpgrade SubscriptionNotice = "upgrade"
)

// EventMeta хранит структурированные метаданные события из каталога.
// Любое поле может отсутствовать — каталог не гарантирует полноту.
type EventMeta struct {
	UpstreamID       string
	UpstreamSystemID string
	Slug             string
	CurrencyCode     string
	LocationTitle    string
	ImageURL         string
	ImageTitle       string
	ImageSystemID    string
	EventType        string
}

// Event описывает событие каталога, сохранённое в БД.
// После создания событие не изменяется и не удаляется этим сервисом.
type Event struct {
	ID               int64
	Name             string
	Description      string
	BookingLink      string
	Price            float64
	CategoryID       int64
	AreaID           int64
	ClassificationID int64
	StartDate        time.Time
	EndDate          time.Time
	PublishedAt      time.Time
	IsPublished      bool
	Meta             EventMeta
	CreatedAt        time.Time
}

// Category — справочник категорий, уникален по имени.
type Category struct {
	ID   int64
	Name string
}

// Area — справочник городов, уникален по имени.
type Area struct {
	ID   int64
	Name string
}

// Classification — справочник зон площадок, уникален по имени.
type Classification struct {
	ID   int64
	Name string
}

// User описывает подписчика бота. Для этой подсистемы пользователь read-only.
type User struct {
	ID              int64
	ChatID          int64
	IsSubscribed    bool
	IsBlocked       bool
	SubscribedUntil *time.Time
	CreatedAt       time.Time
}

// NotificationLogEntry — одна попытка доставки. Журнал append-only:
// запись создаётся на каждую попытку, включая повторы, и не изменяется.
type NotificationLogEntry struct {
	ID           int64
	ChatID       int64
	EventID      *int64
	Type         NotificationType
	SubType      string
	Success      bool
	ErrorMessage string
	SentAt       time.Time
}

// NotificationStat — агрегат журнала по (тип, подтип, успех).
type NotificationStat struct {
	Type    NotificationType
	SubType string
	Success bool
	Count   int
}

// Button — одна кнопка inline-клавиатуры: либо внешняя ссылка,
// либо callback-токен для диалогового фронтенда.
type Button struct {
	Label        string
	URL          string
	CallbackData string
}
