package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"rentwatch/internal/adapters/repo"
	"rentwatch/internal/domain"
	"rentwatch/internal/infra/config"
	"rentwatch/internal/infra/db"
	"rentwatch/internal/infra/metrics"
	"rentwatch/internal/infra/queue"
	"rentwatch/internal/usecase/alerts"
	"rentwatch/internal/usecase/batch"
	"rentwatch/internal/usecase/notify"
)

func main() {
	cfg := config.Load()
	logger := log.With().Str("component", "scheduler").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: миграции не применились")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("scheduler: неизвестный часовой пояс")
	}

	repoAdapter := repo.NewPostgres(pool)

	var deliveryQueue domain.DeliveryQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitDeliveryQueue(cfg.AMQPURL, cfg.Queues.Delivery)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: нет подключения к брокеру")
		}
		defer rabbit.Close()
		deliveryQueue = rabbit
	}

	sink := notify.NewService(repoAdapter, repoAdapter, repoAdapter, deliveryQueue, loc, cfg.Alerts.DedupWindowDays, log.With().Str("component", "notify").Logger())
	alertService := alerts.NewService(repoAdapter, repoAdapter, sink, alerts.Thresholds{
		ExpirationDays: cfg.Alerts.ExpirationDays,
		DueSoonDays:    cfg.Alerts.DueSoonDays,
		IncreaseDays:   cfg.Alerts.IncreaseDays,
	}, log.With().Str("component", "alerts").Logger())
	drainService := batch.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, sink, log.With().Str("component", "batch").Logger())

	c := cron.New(cron.WithLocation(loc))

	if _, err := c.AddFunc(cfg.Schedule.Checkers, func() {
		results, err := alertService.RunAll(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: проход чекеров завершился с ошибками")
		}
		for _, result := range results {
			logger.Info().
				Str("checker", result.Checker).
				Int("created", result.Created).
				Int("batched", result.Batched).
				Int("suppressed", result.Suppressed).
				Int("skipped", result.Skipped).
				Int("errors", result.Errors).
				Msg("scheduler: чекер отработал")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Schedule.Checkers).Msg("scheduler: некорректное расписание чекеров")
	}

	if _, err := c.AddFunc(cfg.Schedule.Drain, func() {
		result, err := drainService.Drain(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: разгрузка корзин не удалась")
			return
		}
		if result.TotalBatched == 0 {
			return
		}
		logger.Info().
			Int("daily", result.DailySent).
			Int("weekly", result.WeeklySent).
			Int("recipients", result.RecipientsNotified).
			Msg("scheduler: корзины разгружены")
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Schedule.Drain).Msg("scheduler: некорректное расписание разгрузки")
	}

	if _, err := c.AddFunc(cfg.Schedule.Purge, func() {
		removed, err := repoAdapter.PurgeOlderThan(ctx, cfg.Schedule.PurgeKeepDays)
		if err != nil {
			logger.Error().Err(err).Msg("scheduler: чистка журнала отправок не удалась")
			return
		}
		logger.Info().Int64("removed", removed).Msg("scheduler: журнал отправок почищен")
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Schedule.Purge).Msg("scheduler: некорректное расписание чистки")
	}

	metrics.StartServer(ctx, log.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	c.Start()
	logger.Info().Msg("scheduler: старт")
	<-ctx.Done()
	logger.Info().Msg("scheduler: остановка")
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("scheduler: не дождались завершения задач")
	}
}
