package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	CatalogFetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_fetch_errors_total",
		Help: "Ошибки запросов листинга каталога",
	})
	EventsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_ingested_total",
		Help: "Количество сохранённых новых событий",
	})
	EventsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_duplicate_total",
		Help: "Количество записей листинга, отброшенных как дубликаты",
	})
	PollCycleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "poll_cycle_seconds",
		Help:    "Длительность цикла опроса каталога",
		Buckets: prometheus.DefBuckets,
	})
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Попытки доставки уведомлений по статусу",
	}, []string{"type", "status"})
	NotificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Уведомления, отброшенные после исчерпания попыток",
	})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_queue_depth",
		Help: "Текущая глубина очереди уведомлений",
	})
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		CatalogFetchErrors,
		EventsIngested,
		EventsDuplicate,
		PollCycleSeconds,
		NotificationsSent,
		NotificationsDropped,
		QueueDepth,
		BotSendErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveSendAttempt записывает исход одной попытки доставки уведомления.
func ObserveSendAttempt(notificationType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
		BotSendErrors.Inc()
	}
	NotificationsSent.WithLabelValues(notificationType, status).Inc()
}
