package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"UTC"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token       string        `envconfig:"TG_BOT_TOKEN"`
		AdminChatID int64         `envconfig:"TG_ADMIN_CHAT_ID"`
		SendTimeout time.Duration `envconfig:"TG_SEND_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Webook struct {
		APIURL  string        `envconfig:"WEBOOK_API_URL"`
		Locale  string        `envconfig:"WEBOOK_LOCALE" default:"ar-SA"`
		Timeout time.Duration `envconfig:"WEBOOK_TIMEOUT" default:"10s"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Ingest struct {
		Interval   time.Duration `envconfig:"INGEST_INTERVAL" default:"60s"`
		FirstLimit int           `envconfig:"INGEST_FIRST_LIMIT" default:"10"`
		NextLimit  int           `envconfig:"INGEST_NEXT_LIMIT" default:"1"`
	} `envconfig:""`

	Notify struct {
		SendDelay   time.Duration `envconfig:"NOTIFY_SEND_DELAY" default:"50ms"`
		MaxAttempts int           `envconfig:"NOTIFY_MAX_ATTEMPTS" default:"3"`
	} `envconfig:""`

	Subscription struct {
		CheckSchedule string        `envconfig:"SUBSCRIPTION_CHECK_SCHEDULE" default:"@every 1h"`
		RenewalWindow time.Duration `envconfig:"SUBSCRIPTION_RENEWAL_WINDOW" default:"72h"`
		ExpiredWindow time.Duration `envconfig:"SUBSCRIPTION_EXPIRED_WINDOW" default:"24h"`
		ReminderDedup time.Duration `envconfig:"SUBSCRIPTION_REMINDER_DEDUP" default:"24h"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения. Файл .env подхватывается,
// если присутствует.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
