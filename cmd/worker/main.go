package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"

	"rentwatch/internal/adapters/mailer"
	"rentwatch/internal/domain"
	"rentwatch/internal/infra/cache"
	"rentwatch/internal/infra/config"
	applog "rentwatch/internal/infra/log"
	"rentwatch/internal/infra/metrics"
	"rentwatch/internal/infra/queue"
)

// Защита от повторной отправки письма при повторной доставке задачи.
const sendOnceTTL = 24 * time.Hour

func main() {
	cfg := config.Load()
	baseLogger := applog.NewLogger(cfg.AppEnv)
	logger := baseLogger.With().Str("component", "worker").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	var deliveryQueue domain.DeliveryQueue
	switch {
	case cfg.AMQPURL != "":
		rabbit, err := queue.NewRabbitDeliveryQueue(cfg.AMQPURL, cfg.Queues.Delivery)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: нет подключения к брокеру")
		}
		defer rabbit.Close()
		deliveryQueue = rabbit
	case redisClient != nil:
		deliveryQueue = queue.NewRedisDeliveryQueue(redisClient, cfg.Queues.Delivery)
	default:
		logger.Fatal().Msg("worker: не задан ни AMQP_URL, ни REDIS_ADDR")
	}

	var once domain.Cache
	if redisClient != nil {
		once = cache.NewRedis(redisClient)
	}

	smtpMailer := mailer.New(mailer.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		From:     cfg.SMTP.From,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Timeout:  cfg.SMTP.Timeout,
	})

	metrics.StartServer(ctx, baseLogger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	logger.Info().Msg("worker: старт")
	for {
		job, ack, err := deliveryQueue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Error().Err(err).Msg("worker: получение задачи")
			time.Sleep(time.Second)
			continue
		}

		err = deliver(ctx, smtpMailer, once, job)
		if err != nil {
			// Доставка best-effort: уведомление уже создано, очередь
			// повторов не ведётся, поэтому задача подтверждается всегда.
			logger.Error().Err(err).
				Str("job_id", job.ID).
				Int64("notification_id", job.NotificationID).
				Msg("worker: доставка письма")
		}
		if ackErr := ack(true); ackErr != nil {
			logger.Error().Err(ackErr).Str("job_id", job.ID).Msg("worker: подтверждение задачи")
		}
	}
	logger.Info().Msg("worker: остановка")
}

// deliver отправляет письмо по задаче. Ключ в Redis гарантирует не
// более одной отправки на задачу даже при повторной доставке из очереди.
func deliver(ctx context.Context, m domain.Mailer, once domain.Cache, job domain.DeliveryJob) error {
	body, err := mailer.RenderEmail(job)
	if err != nil {
		return err
	}
	send := func() error {
		return m.Send(ctx, job.Email, job.Title, body)
	}
	if once == nil {
		return send()
	}
	// Once молча пропускает отправку, если ключ уже задан.
	return once.Once("delivery:sent:"+job.ID, sendOnceTTL, send)
}
