package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rentwatch/internal/domain"
)

type stubNotifications struct {
	created   []domain.Notification
	insertErr error
	conflict  bool
}

func (s *stubNotifications) CreateWithLog(_ context.Context, n domain.Notification, _ time.Time) (domain.Notification, bool, error) {
	if s.insertErr != nil {
		return domain.Notification{}, false, s.insertErr
	}
	if s.conflict {
		return domain.Notification{}, false, nil
	}
	n.ID = int64(len(s.created) + 1)
	s.created = append(s.created, n)
	return n, true, nil
}
func (s *stubNotifications) CreateSummary(_ context.Context, n domain.Notification) (domain.Notification, error) {
	return n, nil
}
func (s *stubNotifications) ListByRecipient(context.Context, int64, bool, int) ([]domain.Notification, error) {
	return nil, nil
}
func (s *stubNotifications) CountUnread(context.Context, int64) (int, error) { return 0, nil }
func (s *stubNotifications) MarkRead(context.Context, int64, int64) error    { return nil }
func (s *stubNotifications) MarkAllRead(context.Context, int64) (int64, error) {
	return 0, nil
}

type stubBatches struct {
	created []domain.BatchedNotification
}

func (s *stubBatches) CreateBatchedWithLog(_ context.Context, b domain.BatchedNotification, _ time.Time) (domain.BatchedNotification, bool, error) {
	b.ID = int64(len(s.created) + 1)
	s.created = append(s.created, b)
	return b, true, nil
}
func (s *stubBatches) ListDue(context.Context, time.Time) ([]domain.BatchedNotification, error) {
	return nil, nil
}
func (s *stubBatches) MarkProcessed(context.Context, []int64, time.Time) (int64, error) {
	return 0, nil
}

type stubDedup struct {
	seen bool
	ref  time.Time
}

func (s *stubDedup) HasRecent(_ context.Context, _ int64, _ domain.Kind, _ domain.EntityRef, ref time.Time, _ int) (bool, error) {
	s.ref = ref
	return s.seen, nil
}
func (s *stubDedup) PurgeOlderThan(context.Context, int) (int64, error) { return 0, nil }

type stubQueue struct {
	jobs []domain.DeliveryJob
	err  error
}

func (s *stubQueue) Enqueue(_ context.Context, job domain.DeliveryJob) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}
func (s *stubQueue) Receive(context.Context) (domain.DeliveryJob, domain.DeliveryAckFunc, error) {
	return domain.DeliveryJob{}, nil, errors.New("не реализовано")
}

func fixedService(notifications *stubNotifications, batches *stubBatches, dedup *stubDedup, queue domain.DeliveryQueue, now time.Time) *Service {
	svc := NewService(notifications, batches, dedup, queue, time.UTC, 1, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc
}

func immediatePref() domain.RecipientPreference {
	return domain.RecipientPreference{Frequency: domain.FrequencyImmediate, EmailEnabled: true}
}

func TestEmitImmediateCreatesAndEnqueues(t *testing.T) {
	notifications := &stubNotifications{}
	queue := &stubQueue{}
	svc := fixedService(notifications, &stubBatches{}, &stubDedup{}, queue, time.Date(2026, time.March, 3, 14, 0, 0, 0, time.UTC))

	recipient := domain.Recipient{ID: 10, Email: "t@example.com"}
	outcome, err := svc.Emit(context.Background(), recipient, immediatePref(), domain.KindOverdueUrgent, domain.InvoiceRef(5), "Заголовок", "Текст")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !outcome.Created {
		t.Fatalf("ожидали немедленное создание, получили %+v", outcome)
	}
	if len(notifications.created) != 1 {
		t.Fatalf("ожидали 1 уведомление")
	}
	if len(queue.jobs) != 1 || queue.jobs[0].Email != "t@example.com" || queue.jobs[0].Cause != domain.DeliveryCauseImmediate {
		t.Fatalf("ожидали задачу доставки, получили %+v", queue.jobs)
	}
}

func TestEmitSuppressedByDedup(t *testing.T) {
	notifications := &stubNotifications{}
	svc := fixedService(notifications, &stubBatches{}, &stubDedup{seen: true}, nil, time.Now())

	outcome, err := svc.Emit(context.Background(), domain.Recipient{ID: 10}, immediatePref(), domain.KindOverdueUrgent, domain.InvoiceRef(5), "Заголовок", "Текст")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !outcome.Suppressed || len(notifications.created) != 0 {
		t.Fatalf("ожидали подавление без создания, получили %+v", outcome)
	}
}

func TestEmitPassesOwnClockToDedup(t *testing.T) {
	dedup := &stubDedup{}
	now := time.Date(2026, time.March, 3, 14, 0, 0, 0, time.UTC)
	svc := fixedService(&stubNotifications{}, &stubBatches{}, dedup, nil, now)

	if _, err := svc.Emit(context.Background(), domain.Recipient{ID: 10}, immediatePref(), domain.KindOverdueUrgent, domain.InvoiceRef(5), "Заголовок", "Текст"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !dedup.ref.Equal(now) {
		t.Fatalf("окно дедупликации должно считаться от часов сервиса: ожидали %v, получили %v", now, dedup.ref)
	}
}

func TestEmitConcurrentConflictSuppresses(t *testing.T) {
	notifications := &stubNotifications{conflict: true}
	queue := &stubQueue{}
	svc := fixedService(notifications, &stubBatches{}, &stubDedup{}, queue, time.Now())

	outcome, err := svc.Emit(context.Background(), domain.Recipient{ID: 10, Email: "t@example.com"}, immediatePref(), domain.KindOverdueUrgent, domain.InvoiceRef(5), "Заголовок", "Текст")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !outcome.Suppressed {
		t.Fatalf("ожидали подавление при конфликте журнала, получили %+v", outcome)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("подавленное уведомление не должно порождать письмо")
	}
}

func TestEmitCreateFailureDoesNotEnqueue(t *testing.T) {
	notifications := &stubNotifications{insertErr: errors.New("отказ базы")}
	queue := &stubQueue{}
	svc := fixedService(notifications, &stubBatches{}, &stubDedup{}, queue, time.Now())

	_, err := svc.Emit(context.Background(), domain.Recipient{ID: 10, Email: "t@example.com"}, immediatePref(), domain.KindOverdueUrgent, domain.InvoiceRef(5), "Заголовок", "Текст")
	if err == nil {
		t.Fatalf("ожидали ошибку создания")
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("при ошибке создания письмо не ставится в очередь")
	}
}

func TestEmitEnqueueFailureIsNotFatal(t *testing.T) {
	notifications := &stubNotifications{}
	queue := &stubQueue{err: errors.New("брокер недоступен")}
	svc := fixedService(notifications, &stubBatches{}, &stubDedup{}, queue, time.Now())

	outcome, err := svc.Emit(context.Background(), domain.Recipient{ID: 10, Email: "t@example.com"}, immediatePref(), domain.KindOverdueUrgent, domain.InvoiceRef(5), "Заголовок", "Текст")
	if err != nil {
		t.Fatalf("ошибка очереди не должна всплывать: %v", err)
	}
	if !outcome.Created {
		t.Fatalf("уведомление должно считаться созданным, получили %+v", outcome)
	}
}

func TestEmitDailyGoesToBucket(t *testing.T) {
	batches := &stubBatches{}
	queue := &stubQueue{}
	now := time.Date(2026, time.March, 3, 14, 0, 0, 0, time.UTC) // вторник
	svc := fixedService(&stubNotifications{}, batches, &stubDedup{}, queue, now)

	pref := domain.RecipientPreference{Frequency: domain.FrequencyDaily, EmailEnabled: true}
	outcome, err := svc.Emit(context.Background(), domain.Recipient{ID: 10, Email: "t@example.com"}, pref, domain.KindDueSoonStandard, domain.InvoiceRef(5), "Заголовок", "Текст")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !outcome.Batched || len(batches.created) != 1 {
		t.Fatalf("ожидали откладывание, получили %+v", outcome)
	}
	want := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	if !batches.created[0].ScheduledFor.Equal(want) {
		t.Fatalf("ожидали слот %v, получили %v", want, batches.created[0].ScheduledFor)
	}
	if len(queue.jobs) != 0 {
		t.Fatalf("отложенное уведомление не отправляется письмом сразу")
	}
}

func TestEmitWeeklyUsesRecipientTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("часовой пояс недоступен")
	}
	batches := &stubBatches{}
	// В UTC ещё воскресенье, в Токио уже понедельник.
	now := time.Date(2026, time.March, 8, 20, 0, 0, 0, time.UTC)
	svc := fixedService(&stubNotifications{}, batches, &stubDedup{}, nil, now)

	pref := domain.RecipientPreference{Frequency: domain.FrequencyWeekly, Timezone: "Asia/Tokyo"}
	if _, err := svc.Emit(context.Background(), domain.Recipient{ID: 10}, pref, domain.KindDueSoonStandard, domain.InvoiceRef(5), "Заголовок", "Текст"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	// Из понедельника недельный слот уезжает на следующий понедельник.
	want := time.Date(2026, time.March, 16, 9, 0, 0, 0, loc)
	if !batches.created[0].ScheduledFor.Equal(want) {
		t.Fatalf("ожидали слот %v, получили %v", want, batches.created[0].ScheduledFor)
	}
}
