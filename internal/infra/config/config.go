package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`
	Port   int    `envconfig:"PORT" default:"8080"`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQPURL string `envconfig:"AMQP_URL"`

	SMTP struct {
		Host     string        `envconfig:"SMTP_HOST"`
		Port     int           `envconfig:"SMTP_PORT" default:"587"`
		From     string        `envconfig:"SMTP_FROM"`
		Username string        `envconfig:"SMTP_USERNAME"`
		Password string        `envconfig:"SMTP_PASSWORD"`
		Timeout  time.Duration `envconfig:"SMTP_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Alerts struct {
		ExpirationDays  int `envconfig:"EXPIRATION_THRESHOLD_DAYS" default:"30"`
		DueSoonDays     int `envconfig:"DUE_SOON_THRESHOLD_DAYS" default:"7"`
		IncreaseDays    int `envconfig:"INCREASE_LOOKAHEAD_DAYS" default:"7"`
		DedupWindowDays int `envconfig:"DEDUP_WINDOW_DAYS" default:"1"`
	} `envconfig:""`

	Queues struct {
		Delivery string `envconfig:"DELIVERY_QUEUE_KEY" default:"delivery_jobs"`
	} `envconfig:""`

	Schedule struct {
		Checkers      string `envconfig:"CHECKERS_CRON" default:"0 8 * * *"`
		Drain         string `envconfig:"DRAIN_CRON" default:"*/15 * * * *"`
		Purge         string `envconfig:"PURGE_CRON" default:"0 3 * * 0"`
		PurgeKeepDays int    `envconfig:"PURGE_KEEP_DAYS" default:"90"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
