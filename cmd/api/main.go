package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"rentwatch/internal/adapters/repo"
	"rentwatch/internal/domain"
	"rentwatch/internal/infra/config"
	"rentwatch/internal/infra/db"
	httpinfra "rentwatch/internal/infra/http"
	"rentwatch/internal/infra/metrics"
	"rentwatch/internal/infra/queue"
	"rentwatch/internal/usecase/alerts"
	"rentwatch/internal/usecase/notify"
	"rentwatch/internal/usecase/prefs"
)

func main() {
	cfg := config.Load()
	logger := log.With().Str("component", "api").Logger()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Fatal().Err(err).Msg("api: миграции не применились")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	defaultLoc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Fatal().Err(err).Str("tz", cfg.TZ).Msg("api: неизвестный часовой пояс")
	}

	repoAdapter := repo.NewPostgres(pool)

	var deliveryQueue domain.DeliveryQueue
	if cfg.AMQPURL != "" {
		rabbit, err := queue.NewRabbitDeliveryQueue(cfg.AMQPURL, cfg.Queues.Delivery)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к брокеру")
		}
		defer rabbit.Close()
		deliveryQueue = rabbit
	}

	sink := notify.NewService(repoAdapter, repoAdapter, repoAdapter, deliveryQueue, defaultLoc, cfg.Alerts.DedupWindowDays, log.With().Str("component", "notify").Logger())
	alertService := alerts.NewService(repoAdapter, repoAdapter, sink, alerts.Thresholds{
		ExpirationDays: cfg.Alerts.ExpirationDays,
		DueSoonDays:    cfg.Alerts.DueSoonDays,
		IncreaseDays:   cfg.Alerts.IncreaseDays,
	}, log.With().Str("component", "alerts").Logger())
	prefService := prefs.NewService(repoAdapter, repoAdapter, log.With().Str("component", "prefs").Logger())

	server := httpinfra.NewServer(logger)
	server.Router.Route("/api/v1", func(r chi.Router) {
		r.Get("/recipients/{id}/notifications", func(w http.ResponseWriter, req *http.Request) {
			recipientID, ok := pathID(w, req, "id")
			if !ok {
				return
			}
			unreadOnly := req.URL.Query().Get("unread") == "true"
			limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
			items, err := repoAdapter.ListByRecipient(req.Context(), recipientID, unreadOnly, limit)
			if err != nil {
				logger.Error().Err(err).Msg("api: список уведомлений")
				writeError(w, http.StatusInternalServerError, "failed to list notifications")
				return
			}
			writeJSON(w, map[string]any{"notifications": toNotificationViews(items)})
		})

		r.Get("/recipients/{id}/notifications/unread-count", func(w http.ResponseWriter, req *http.Request) {
			recipientID, ok := pathID(w, req, "id")
			if !ok {
				return
			}
			count, err := repoAdapter.CountUnread(req.Context(), recipientID)
			if err != nil {
				logger.Error().Err(err).Msg("api: счётчик непрочитанных")
				writeError(w, http.StatusInternalServerError, "failed to count unread")
				return
			}
			writeJSON(w, map[string]int{"unread": count})
		})

		r.Post("/recipients/{id}/notifications/{notificationID}/read", func(w http.ResponseWriter, req *http.Request) {
			recipientID, ok := pathID(w, req, "id")
			if !ok {
				return
			}
			notificationID, ok := pathID(w, req, "notificationID")
			if !ok {
				return
			}
			if err := repoAdapter.MarkRead(req.Context(), recipientID, notificationID); err != nil {
				if errors.Is(err, repo.ErrNotificationNotFound) {
					writeError(w, http.StatusNotFound, "notification not found")
					return
				}
				logger.Error().Err(err).Msg("api: отметка прочитанным")
				writeError(w, http.StatusInternalServerError, "failed to mark read")
				return
			}
			writeJSON(w, map[string]string{"status": "ok"})
		})

		r.Post("/recipients/{id}/notifications/read-all", func(w http.ResponseWriter, req *http.Request) {
			recipientID, ok := pathID(w, req, "id")
			if !ok {
				return
			}
			affected, err := repoAdapter.MarkAllRead(req.Context(), recipientID)
			if err != nil {
				logger.Error().Err(err).Msg("api: отметка всех прочитанными")
				writeError(w, http.StatusInternalServerError, "failed to mark all read")
				return
			}
			writeJSON(w, map[string]int64{"marked": affected})
		})

		r.Get("/recipients/{id}/preferences", func(w http.ResponseWriter, req *http.Request) {
			recipientID, ok := pathID(w, req, "id")
			if !ok {
				return
			}
			pref, err := prefService.Resolve(req.Context(), recipientID)
			if err != nil {
				if errors.Is(err, repo.ErrRecipientNotFound) {
					writeError(w, http.StatusNotFound, "recipient not found")
					return
				}
				logger.Error().Err(err).Msg("api: получение настроек")
				writeError(w, http.StatusInternalServerError, "failed to load preferences")
				return
			}
			writeJSON(w, toPreferenceView(pref))
		})

		r.Put("/recipients/{id}/preferences", func(w http.ResponseWriter, req *http.Request) {
			recipientID, ok := pathID(w, req, "id")
			if !ok {
				return
			}
			defer req.Body.Close()
			var body preferenceRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			updated, err := prefService.Update(req.Context(), body.toDomain(recipientID))
			if err != nil {
				switch {
				case errors.Is(err, prefs.ErrInvalidFrequency):
					writeError(w, http.StatusBadRequest, "invalid frequency")
				case errors.Is(err, prefs.ErrInvalidTimezone):
					writeError(w, http.StatusBadRequest, "invalid timezone")
				case errors.Is(err, repo.ErrRecipientNotFound):
					writeError(w, http.StatusNotFound, "recipient not found")
				default:
					logger.Error().Err(err).Msg("api: обновление настроек")
					writeError(w, http.StatusInternalServerError, "failed to update preferences")
				}
				return
			}
			writeJSON(w, toPreferenceView(updated))
		})

		r.Post("/leases/{id}/check", func(w http.ResponseWriter, req *http.Request) {
			leaseID, ok := pathID(w, req, "id")
			if !ok {
				return
			}
			result, err := alertService.CheckLease(req.Context(), leaseID)
			if err != nil {
				logger.Error().Err(err).Msg("api: проверка договора")
				writeError(w, http.StatusInternalServerError, "failed to check lease")
				return
			}
			writeJSON(w, toScanView(result))
		})

		r.Post("/invoices/{id}/check", func(w http.ResponseWriter, req *http.Request) {
			invoiceID, ok := pathID(w, req, "id")
			if !ok {
				return
			}
			result, err := alertService.CheckInvoice(req.Context(), invoiceID)
			if err != nil {
				logger.Error().Err(err).Msg("api: проверка счёта")
				writeError(w, http.StatusInternalServerError, "failed to check invoice")
				return
			}
			writeJSON(w, toScanView(result))
		})
	})

	metrics.StartServer(ctx, log.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func pathID(w http.ResponseWriter, req *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(req, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}

type notificationView struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   int64  `json:"entity_id,omitempty"`
	IsRead     bool   `json:"is_read"`
	CreatedAt  string `json:"created_at"`
}

func toNotificationViews(items []domain.Notification) []notificationView {
	views := make([]notificationView, 0, len(items))
	for _, n := range items {
		views = append(views, notificationView{
			ID:         n.ID,
			Kind:       string(n.Kind),
			Title:      n.Title,
			Message:    n.Message,
			EntityType: string(n.Entity.Type),
			EntityID:   n.Entity.ID,
			IsRead:     n.IsRead,
			CreatedAt:  n.CreatedAt.Format(time.RFC3339),
		})
	}
	return views
}

type preferenceRequest struct {
	ExpirationEnabled bool   `json:"expiration_enabled"`
	OverdueEnabled    bool   `json:"overdue_enabled"`
	DueSoonEnabled    bool   `json:"due_soon_enabled"`
	IncreaseEnabled   bool   `json:"increase_enabled"`
	Frequency         string `json:"frequency"`
	LookaheadDays     int    `json:"lookahead_days"`
	EmailEnabled      bool   `json:"email_enabled"`
	Timezone          string `json:"timezone"`
}

func (r preferenceRequest) toDomain(recipientID int64) domain.RecipientPreference {
	return domain.RecipientPreference{
		RecipientID:       recipientID,
		ExpirationEnabled: r.ExpirationEnabled,
		OverdueEnabled:    r.OverdueEnabled,
		DueSoonEnabled:    r.DueSoonEnabled,
		IncreaseEnabled:   r.IncreaseEnabled,
		Frequency:         domain.Frequency(r.Frequency),
		LookaheadDays:     r.LookaheadDays,
		EmailEnabled:      r.EmailEnabled,
		Timezone:          r.Timezone,
	}
}

type preferenceView struct {
	RecipientID       int64  `json:"recipient_id"`
	ExpirationEnabled bool   `json:"expiration_enabled"`
	OverdueEnabled    bool   `json:"overdue_enabled"`
	DueSoonEnabled    bool   `json:"due_soon_enabled"`
	IncreaseEnabled   bool   `json:"increase_enabled"`
	Frequency         string `json:"frequency"`
	LookaheadDays     int    `json:"lookahead_days"`
	EmailEnabled      bool   `json:"email_enabled"`
	Timezone          string `json:"timezone,omitempty"`
}

func toPreferenceView(p domain.RecipientPreference) preferenceView {
	return preferenceView{
		RecipientID:       p.RecipientID,
		ExpirationEnabled: p.ExpirationEnabled,
		OverdueEnabled:    p.OverdueEnabled,
		DueSoonEnabled:    p.DueSoonEnabled,
		IncreaseEnabled:   p.IncreaseEnabled,
		Frequency:         string(p.Frequency),
		LookaheadDays:     p.LookaheadDays,
		EmailEnabled:      p.EmailEnabled,
		Timezone:          p.Timezone,
	}
}

type scanView struct {
	Created    int            `json:"created"`
	Batched    int            `json:"batched"`
	Suppressed int            `json:"suppressed"`
	Skipped    int            `json:"skipped"`
	Errors     int            `json:"errors"`
	ByKind     map[string]int `json:"by_kind,omitempty"`
}

func toScanView(r domain.ScanResult) scanView {
	view := scanView{
		Created:    r.Created,
		Batched:    r.Batched,
		Suppressed: r.Suppressed,
		Skipped:    r.Skipped,
		Errors:     r.Errors,
	}
	if len(r.ByKind) > 0 {
		view.ByKind = make(map[string]int, len(r.ByKind))
		for kind, count := range r.ByKind {
			view.ByKind[string(kind)] = count
		}
	}
	return view
}
