package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rentwatch/internal/domain"
	"rentwatch/internal/infra/metrics"
)

// SummaryMailer ставит в очередь письмо по готовой сводке.
type SummaryMailer interface {
	EnqueueSummaryEmail(ctx context.Context, recipient domain.Recipient, pref domain.RecipientPreference, n domain.Notification)
}

// Service выгружает созревшие отложенные уведомления: собирает их в
// сводки по получателю и корзине, создаёт сводные уведомления и
// помечает исходные записи обработанными.
type Service struct {
	batches       domain.BatchRepo
	notifications domain.NotificationRepo
	store         domain.EntityStore
	prefs         domain.PreferenceRepo
	mailer        SummaryMailer
	logger        zerolog.Logger
	now           func() time.Time
}

// NewService создаёт сервис разгрузки корзин. mailer может быть nil.
func NewService(batches domain.BatchRepo, notifications domain.NotificationRepo, store domain.EntityStore, prefs domain.PreferenceRepo, mailer SummaryMailer, logger zerolog.Logger) *Service {
	return &Service{
		batches:       batches,
		notifications: notifications,
		store:         store,
		prefs:         prefs,
		mailer:        mailer,
		logger:        logger,
		now:           time.Now,
	}
}

// Drain обрабатывает все созревшие отложенные уведомления. Порядок
// строгий: сначала создаётся сводка, затем её пункты помечаются
// обработанными, поэтому сбой между шагами приводит к повтору, а не к
// потере. Ошибка одной группы не останавливает остальные.
func (s *Service) Drain(ctx context.Context) (domain.DrainResult, error) {
	var result domain.DrainResult
	now := s.now()

	due, err := s.batches.ListDue(ctx, now)
	if err != nil {
		return result, fmt.Errorf("выборка созревших уведомлений: %w", err)
	}
	if len(due) == 0 {
		return result, nil
	}
	result.TotalBatched = len(due)

	notified := make(map[int64]bool)
	for start := 0; start < len(due); {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		end := start
		for end < len(due) && due[end].RecipientID == due[start].RecipientID && due[end].Bucket == due[start].Bucket {
			end++
		}
		group := due[start:end]
		start = end

		if err := s.drainGroup(ctx, group, now); err != nil {
			result.TotalBatched -= len(group)
			s.logger.Error().Err(err).
				Int64("recipient_id", group[0].RecipientID).
				Str("bucket", string(group[0].Bucket)).
				Int("items", len(group)).
				Msg("batch: выгрузка группы не удалась, пункты останутся до следующего прохода")
			continue
		}
		if group[0].Bucket == domain.BucketWeekly {
			result.WeeklySent += len(group)
		} else {
			result.DailySent += len(group)
		}
		if !notified[group[0].RecipientID] {
			notified[group[0].RecipientID] = true
			result.RecipientsNotified++
		}
	}
	return result, nil
}

// drainGroup собирает одну сводку для пары (получатель, корзина).
func (s *Service) drainGroup(ctx context.Context, group []domain.BatchedNotification, now time.Time) error {
	recipientID := group[0].RecipientID
	bucket := group[0].Bucket

	recipient, err := s.store.GetRecipient(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("получение получателя: %w", err)
	}
	pref, _, err := s.prefs.ResolveOrDefault(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("получение настроек: %w", err)
	}

	kind := domain.KindSummaryDaily
	if bucket == domain.BucketWeekly {
		kind = domain.KindSummaryWeekly
	}
	title, message := summaryContent(bucket, group)

	summary, err := s.notifications.CreateSummary(ctx, domain.Notification{
		RecipientID: recipientID,
		Kind:        kind,
		Title:       title,
		Message:     message,
	})
	if err != nil {
		return fmt.Errorf("создание сводки: %w", err)
	}

	ids := make([]int64, 0, len(group))
	for _, item := range group {
		ids = append(ids, item.ID)
	}
	if _, err := s.batches.MarkProcessed(ctx, ids, now); err != nil {
		return fmt.Errorf("отметка пунктов сводки: %w", err)
	}

	metrics.BatchDrainedTotal.WithLabelValues(string(bucket)).Add(float64(len(group)))
	metrics.DrainSummariesTotal.WithLabelValues(string(bucket)).Inc()

	if s.mailer != nil {
		s.mailer.EnqueueSummaryEmail(ctx, recipient, pref, summary)
	}
	return nil
}
