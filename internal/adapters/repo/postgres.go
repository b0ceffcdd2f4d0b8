package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"webook-events-bot/internal/domain"
	"webook-events-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.EventRepo = (*Postgres)(nil)
var _ domain.UserRepo = (*Postgres)(nil)
var _ domain.NotificationLogRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ExistsByNaturalKey проверяет, известно ли событие по полному
// натуральному ключу. Сравнение через IS NOT DISTINCT FROM, чтобы
// отсутствующие поля метаданных совпадали с NULL в БД.
func (p *Postgres) ExistsByNaturalKey(ctx context.Context, key domain.NaturalKey) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM events
    WHERE name = $1
      AND start_date = $2
      AND price = $3
      AND upstream_system_id IS NOT DISTINCT FROM $4
      AND upstream_id IS NOT DISTINCT FROM $5
      AND slug IS NOT DISTINCT FROM $6
      AND currency_code IS NOT DISTINCT FROM $7
      AND location_title IS NOT DISTINCT FROM $8
      AND image_url IS NOT DISTINCT FROM $9
)
`, key.Name, key.StartDate, key.Price,
		nullString(key.UpstreamSystemID), nullString(key.UpstreamID), nullString(key.Slug),
		nullString(key.CurrencyCode), nullString(key.LocationTitle), nullString(key.ImageURL)).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "events_exists_by_natural_key", "events", start, err)
	return exists, err
}

// CreateEvent сохраняет событие и возвращает запись с присвоенным id.
func (p *Postgres) CreateEvent(ctx context.Context, event domain.Event) (domain.Event, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var endDate sql.NullTime
	if !event.EndDate.IsZero() {
		endDate = sql.NullTime{Time: event.EndDate, Valid: true}
	}
	var publishedAt sql.NullTime
	if !event.PublishedAt.IsZero() {
		publishedAt = sql.NullTime{Time: event.PublishedAt, Valid: true}
	}

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO events (
    name, description, booking_link, price,
    category_id, area_id, classification_id,
    start_date, end_date, published_at, is_published,
    upstream_id, upstream_system_id, slug, currency_code,
    location_title, image_url, image_title, image_system_id, event_type
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
RETURNING id, created_at
`, event.Name, event.Description, event.BookingLink, event.Price,
		event.CategoryID, event.AreaID, event.ClassificationID,
		event.StartDate, endDate, publishedAt, event.IsPublished,
		nullString(event.Meta.UpstreamID), nullString(event.Meta.UpstreamSystemID),
		nullString(event.Meta.Slug), nullString(event.Meta.CurrencyCode),
		nullString(event.Meta.LocationTitle), nullString(event.Meta.ImageURL),
		nullString(event.Meta.ImageTitle), nullString(event.Meta.ImageSystemID),
		nullString(event.Meta.EventType)).Scan(&event.ID, &event.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "events_insert", "events", start, err)
	return event, err
}

func (p *Postgres) upsertReference(ctx context.Context, table, name string) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	// ON CONFLICT DO UPDATE вместо DO NOTHING: так RETURNING отдаёт id и
	// тому, кто проиграл гонку за вставку.
	query := `INSERT INTO ` + table + ` (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`

	var id int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, query, name).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", table+"_upsert", table, start, err)
	return id, err
}

// UpsertCategory возвращает id категории, создавая её при необходимости.
func (p *Postgres) UpsertCategory(ctx context.Context, name string) (int64, error) {
	return p.upsertReference(ctx, "categories", name)
}

// UpsertArea возвращает id города, создавая его при необходимости.
func (p *Postgres) UpsertArea(ctx context.Context, name string) (int64, error) {
	return p.upsertReference(ctx, "areas", name)
}

// UpsertClassification возвращает id зоны, создавая её при необходимости.
func (p *Postgres) UpsertClassification(ctx context.Context, name string) (int64, error) {
	return p.upsertReference(ctx, "classifications", name)
}

// FindInterested возвращает активных, не заблокированных подписчиков,
// чьи предпочтения пересекаются с категорией или городом события.
func (p *Postgres) FindInterested(ctx context.Context, categoryID, areaID int64) ([]domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT u.id, u.chat_id, u.is_subscribed, u.is_blocked, u.subscribed_until, u.created_at
FROM users u
LEFT JOIN user_preference_categories pc ON pc.user_id = u.id AND pc.category_id = $1
LEFT JOIN user_preference_areas pa ON pa.user_id = u.id AND pa.area_id = $2
WHERE u.is_subscribed AND NOT u.is_blocked
  AND (pc.user_id IS NOT NULL OR pa.user_id IS NOT NULL)
ORDER BY u.id
`, categoryID, areaID)
	metrics.ObserveNetworkRequest("postgres", "users_find_interested", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListExpiring возвращает подписчиков, чья подписка истекает в пределах
// указанного окна.
func (p *Postgres) ListExpiring(ctx context.Context, now time.Time, within time.Duration) ([]domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, chat_id, is_subscribed, is_blocked, subscribed_until, created_at
FROM users
WHERE is_subscribed AND NOT is_blocked
  AND subscribed_until IS NOT NULL
  AND subscribed_until > $1
  AND subscribed_until <= $2
ORDER BY subscribed_until
`, now, now.Add(within))
	metrics.ObserveNetworkRequest("postgres", "users_list_expiring", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// ListExpired возвращает подписчиков, чья подписка закончилась не позднее
// указанного окна назад. Флаг is_subscribed снимает платёжная подсистема,
// поэтому здесь он ещё может быть установлен.
func (p *Postgres) ListExpired(ctx context.Context, now time.Time, window time.Duration) ([]domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, chat_id, is_subscribed, is_blocked, subscribed_until, created_at
FROM users
WHERE NOT is_blocked
  AND subscribed_until IS NOT NULL
  AND subscribed_until <= $1
  AND subscribed_until > $2
ORDER BY subscribed_until
`, now, now.Add(-window))
	metrics.ObserveNetworkRequest("postgres", "users_list_expired", "users", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows pgx.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		var u domain.User
		var until sql.NullTime
		if err := rows.Scan(&u.ID, &u.ChatID, &u.IsSubscribed, &u.IsBlocked, &until, &u.CreatedAt); err != nil {
			return nil, err
		}
		if until.Valid {
			ts := until.Time
			u.SubscribedUntil = &ts
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Append добавляет запись журнала доставки. Журнал append-only.
func (p *Postgres) Append(ctx context.Context, entry domain.NotificationLogEntry) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var eventID sql.NullInt64
	if entry.EventID != nil {
		eventID = sql.NullInt64{Int64: *entry.EventID, Valid: true}
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO notification_log (chat_id, event_id, type, sub_type, success, error_message, sent_at)
VALUES ($1, $2, $3, NULLIF($4,''), $5, NULLIF($6,''), $7)
`, entry.ChatID, eventID, string(entry.Type), entry.SubType, entry.Success, entry.ErrorMessage, entry.SentAt)
	metrics.ObserveNetworkRequest("postgres", "notification_log_insert", "notification_log", start, err)
	return err
}

// StatsByRecipient возвращает агрегаты журнала по получателю.
func (p *Postgres) StatsByRecipient(ctx context.Context, chatID int64) ([]domain.NotificationStat, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT type, COALESCE(sub_type, ''), success, COUNT(*)
FROM notification_log
WHERE chat_id = $1
GROUP BY type, sub_type, success
ORDER BY type, sub_type, success
`, chatID)
	metrics.ObserveNetworkRequest("postgres", "notification_log_stats", "notification_log", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.NotificationStat
	for rows.Next() {
		var s domain.NotificationStat
		var kind string
		if err := rows.Scan(&kind, &s.SubType, &s.Success, &s.Count); err != nil {
			return nil, err
		}
		s.Type = domain.NotificationType(kind)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
