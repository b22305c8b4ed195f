package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rentwatch/internal/domain"
	"rentwatch/internal/infra/metrics"
)

// Service — сток уведомлений. Решает для каждого уведомления: подавить
// по журналу отправок, создать и доставить сразу либо отложить в
// корзину сводки согласно настройкам получателя.
type Service struct {
	notifications domain.NotificationRepo
	batches       domain.BatchRepo
	dedup         domain.DedupLog
	queue         domain.DeliveryQueue
	logger        zerolog.Logger
	defaultLoc    *time.Location
	windowDays    int
	now           func() time.Time
}

var _ domain.NotificationSink = (*Service)(nil)

// NewService создаёт сток уведомлений. queue может быть nil: тогда
// письма не ставятся в очередь, уведомления создаются как обычно.
func NewService(notifications domain.NotificationRepo, batches domain.BatchRepo, dedup domain.DedupLog, queue domain.DeliveryQueue, defaultLoc *time.Location, windowDays int, logger zerolog.Logger) *Service {
	if windowDays < 1 {
		windowDays = 1
	}
	return &Service{
		notifications: notifications,
		batches:       batches,
		dedup:         dedup,
		queue:         queue,
		logger:        logger,
		defaultLoc:    defaultLoc,
		windowDays:    windowDays,
		now:           time.Now,
	}
}

// Emit пропускает одно уведомление через журнал отправок и маршрутизирует
// его в немедленную либо отложенную доставку. Запись журнала и создание
// уведомления выполняются в одной транзакции, поэтому конкурирующие
// писатели за один день не создают дублей.
func (s *Service) Emit(ctx context.Context, recipient domain.Recipient, pref domain.RecipientPreference, kind domain.Kind, entity domain.EntityRef, title, message string) (domain.EmitOutcome, error) {
	now := s.now()

	seen, err := s.dedup.HasRecent(ctx, recipient.ID, kind, entity, now, s.windowDays)
	if err != nil {
		return domain.EmitOutcome{}, fmt.Errorf("проверка журнала отправок: %w", err)
	}
	if seen {
		metrics.NotificationsSuppressedTotal.Inc()
		return domain.EmitOutcome{Suppressed: true}, nil
	}

	if bucket, ok := domain.BucketFor(pref.Frequency); ok {
		return s.emitBatched(ctx, recipient, pref, bucket, kind, entity, title, message, now)
	}
	return s.emitImmediate(ctx, recipient, pref, kind, entity, title, message, now)
}

func (s *Service) emitImmediate(ctx context.Context, recipient domain.Recipient, pref domain.RecipientPreference, kind domain.Kind, entity domain.EntityRef, title, message string, now time.Time) (domain.EmitOutcome, error) {
	created, inserted, err := s.notifications.CreateWithLog(ctx, domain.Notification{
		RecipientID: recipient.ID,
		Kind:        kind,
		Title:       title,
		Message:     message,
		Entity:      entity,
	}, now)
	if err != nil {
		return domain.EmitOutcome{}, fmt.Errorf("создание уведомления: %w", err)
	}
	if !inserted {
		metrics.NotificationsSuppressedTotal.Inc()
		return domain.EmitOutcome{Suppressed: true}, nil
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(string(kind)).Inc()

	s.enqueueEmail(ctx, recipient, pref, created)
	return domain.EmitOutcome{Created: true}, nil
}

func (s *Service) emitBatched(ctx context.Context, recipient domain.Recipient, pref domain.RecipientPreference, bucket domain.Bucket, kind domain.Kind, entity domain.EntityRef, title, message string, now time.Time) (domain.EmitOutcome, error) {
	local := now.In(pref.Location(s.defaultLoc))
	var scheduledFor time.Time
	if bucket == domain.BucketWeekly {
		scheduledFor = NextWeekly(local)
	} else {
		scheduledFor = NextDaily(local)
	}

	_, inserted, err := s.batches.CreateBatchedWithLog(ctx, domain.BatchedNotification{
		RecipientID:  recipient.ID,
		Bucket:       bucket,
		Kind:         kind,
		Title:        title,
		Message:      message,
		Entity:       entity,
		ScheduledFor: scheduledFor,
	}, now)
	if err != nil {
		return domain.EmitOutcome{}, fmt.Errorf("откладывание уведомления: %w", err)
	}
	if !inserted {
		metrics.NotificationsSuppressedTotal.Inc()
		return domain.EmitOutcome{Suppressed: true}, nil
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(string(kind)).Inc()
	return domain.EmitOutcome{Batched: true}, nil
}

// enqueueEmail ставит письмо в очередь доставки. Ошибки постановки
// логируются и не влияют на созданное уведомление.
func (s *Service) enqueueEmail(ctx context.Context, recipient domain.Recipient, pref domain.RecipientPreference, n domain.Notification) {
	if s.queue == nil || !pref.EmailEnabled || recipient.Email == "" {
		return
	}
	job := domain.DeliveryJob{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		RecipientID:    recipient.ID,
		Email:          recipient.Email,
		Kind:           n.Kind,
		Title:          n.Title,
		Message:        n.Message,
		Cause:          domain.DeliveryCauseImmediate,
		RequestedAt:    s.now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("notify: постановка письма в очередь")
	}
}

// EnqueueSummaryEmail ставит в очередь письмо со сводкой. Используется
// разгрузкой корзин; ошибки также не считаются фатальными.
func (s *Service) EnqueueSummaryEmail(ctx context.Context, recipient domain.Recipient, pref domain.RecipientPreference, n domain.Notification) {
	if s.queue == nil || !pref.EmailEnabled || recipient.Email == "" {
		return
	}
	job := domain.DeliveryJob{
		ID:             uuid.NewString(),
		NotificationID: n.ID,
		RecipientID:    recipient.ID,
		Email:          recipient.Email,
		Kind:           n.Kind,
		Title:          n.Title,
		Message:        n.Message,
		Cause:          domain.DeliveryCauseSummary,
		RequestedAt:    s.now(),
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("notify: постановка сводки в очередь")
	}
}
