package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"webook-events-bot/internal/adapters/api"
	"webook-events-bot/internal/adapters/repo"
	"webook-events-bot/internal/adapters/telegram"
	"webook-events-bot/internal/adapters/webook"
	"webook-events-bot/internal/infra/cache"
	"webook-events-bot/internal/infra/config"
	"webook-events-bot/internal/infra/db"
	httpserver "webook-events-bot/internal/infra/http"
	"webook-events-bot/internal/infra/log"
	"webook-events-bot/internal/infra/metrics"
	"webook-events-bot/internal/usecase/ingest"
	"webook-events-bot/internal/usecase/notify"
	"webook-events-bot/internal/usecase/subscription"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	cacheAdapter := cache.NewRedis(redisClient)

	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, tgbotapi.APIEndpoint, &http.Client{Timeout: cfg.Telegram.SendTimeout})
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}

	repoAdapter := repo.NewPostgres(pool)
	sender := telegram.NewSender(botAPI, logger)

	dispatcher := notify.NewService(repoAdapter, repoAdapter, sender, logger,
		cfg.Notify.SendDelay, cfg.Notify.MaxAttempts, cfg.Telegram.AdminChatID)
	defer dispatcher.Stop()

	catalog := webook.NewClient(cfg.Webook.APIURL, cfg.Webook.Locale, cfg.Webook.Timeout)
	poller := ingest.NewService(catalog, repoAdapter, dispatcher, logger,
		cfg.Ingest.Interval, cfg.Ingest.FirstLimit, cfg.Ingest.NextLimit)

	subs := subscription.NewService(repoAdapter, cacheAdapter, dispatcher, logger,
		cfg.Subscription.RenewalWindow, cfg.Subscription.ExpiredWindow, cfg.Subscription.ReminderDedup)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go poller.Run(ctx)

	cronRunner := cron.New()
	if _, err := cronRunner.AddFunc(cfg.Subscription.CheckSchedule, func() {
		if err := subs.CheckSubscriptions(ctx); err != nil {
			logger.Error().Err(err).Msg("проверка подписок завершилась с ошибкой")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("некорректное расписание проверки подписок")
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	server := httpserver.NewServer(logger)
	api.NewHandler(repoAdapter, logger).Register(server.Router)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	dispatcher.NotifyAdmin(notify.AdminSuccess, "تم تشغيل البوت بنجاح")
	logger.Info().Str("env", cfg.AppEnv).Msg("сервис запущен")

	<-ctx.Done()
	logger.Info().Msg("остановка сервиса")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("не удалось корректно остановить HTTP сервер")
	}
	// Очередь уведомлений сейчас будет остановлена, поэтому прощальное
	// сообщение администратору уходит напрямую, в обход очереди.
	if cfg.Telegram.AdminChatID != 0 {
		_ = sender.SendText(shutdownCtx, cfg.Telegram.AdminChatID,
			notify.AdminMessage(notify.AdminWarning, "يتم إيقاف البوت"), nil)
	}
}
