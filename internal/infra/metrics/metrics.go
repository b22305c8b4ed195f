package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	ScanEntitiesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_entities_total",
		Help: "Обработанные чекерами сущности по исходам",
	}, []string{"checker", "outcome"})

	ScanDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scan_duration_seconds",
		Help:    "Длительность одного прохода чекера",
		Buckets: prometheus.DefBuckets,
	}, []string{"checker"})

	NotificationsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Созданные уведомления по видам",
	}, []string{"kind"})

	NotificationsSuppressedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifications_suppressed_total",
		Help: "Уведомления, подавленные журналом отправок",
	})

	BatchDrainedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "batch_drained_total",
		Help: "Выгруженные из корзин отложенные уведомления",
	}, []string{"bucket"})

	DrainSummariesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drain_summaries_total",
		Help: "Созданные сводные уведомления",
	}, []string{"bucket"})

	DeliverySendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "delivery_send_errors_total",
		Help: "Ошибки отправки писем",
	})

	DeliverySendSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_send_seconds",
		Help:    "Длительность отправки письма",
		Buckets: prometheus.DefBuckets,
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		ScanEntitiesTotal,
		ScanDurationSeconds,
		NotificationsCreatedTotal,
		NotificationsSuppressedTotal,
		BatchDrainedTotal,
		DrainSummariesTotal,
		DeliverySendErrors,
		DeliverySendSeconds,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
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

// ObserveScanOutcome учитывает исход обработки одной сущности чекером.
func ObserveScanOutcome(checker, outcome string) {
	ScanEntitiesTotal.WithLabelValues(checker, outcome).Inc()
}
