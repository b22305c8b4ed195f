package domain

import (
	"context"
	"time"
)

// EntityStore — read-only доступ к бизнес-сущностям. Хранилище
// отвечает только на предикатные выборки; этот модуль ничего в нём
// не изменяет.
type EntityStore interface {
	// FindExpiringLeases возвращает действующие договоры, срок которых
	// истекает в ближайшие thresholdDays дней либо уже истёк.
	FindExpiringLeases(ctx context.Context, ref time.Time, thresholdDays int) ([]Lease, error)
	// FindOverdueInvoices возвращает счета с прошедшим сроком оплаты и
	// положительным остатком.
	FindOverdueInvoices(ctx context.Context, ref time.Time) ([]Invoice, error)
	// FindInvoicesDueSoon возвращает неоплаченные счета со сроком в
	// ближайшие days дней.
	FindInvoicesDueSoon(ctx context.Context, ref time.Time, days int) ([]Invoice, error)
	// FindLeasesWithIncrease возвращает действующие договоры с
	// настроенной индексацией арендной платы.
	FindLeasesWithIncrease(ctx context.Context, ref time.Time) ([]Lease, error)
	GetRecipient(ctx context.Context, id int64) (Recipient, error)
	GetLease(ctx context.Context, id int64) (Lease, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
}

// PreferenceRepo управляет настройками доставки.
type PreferenceRepo interface {
	// ResolveOrDefault возвращает настройки получателя, создавая запись
	// со значениями по умолчанию при первом обращении. Создание
	// идемпотентно при конкурентном первом доступе.
	ResolveOrDefault(ctx context.Context, recipientID int64) (RecipientPreference, bool, error)
	Update(ctx context.Context, pref RecipientPreference) (RecipientPreference, error)
}

// DedupLog — журнал отправок с дневной гранулярностью.
type DedupLog interface {
	// HasRecent сообщает, была ли отправка по той же тройке
	// (получатель, вид, сущность) за последние windowDays дней,
	// считая от даты ref.
	HasRecent(ctx context.Context, recipientID int64, kind Kind, entity EntityRef, ref time.Time, windowDays int) (bool, error)
	// PurgeOlderThan удаляет записи старше keepDays дней и возвращает
	// их количество.
	PurgeOlderThan(ctx context.Context, keepDays int) (int64, error)
}

// NotificationRepo управляет уведомлениями.
type NotificationRepo interface {
	// CreateWithLog атомарно пишет запись журнала отправок за день
	// sentOn и само уведомление в одной транзакции. Возвращает false
	// без ошибки, если запись журнала за этот день уже существует:
	// конкурирующий писатель успел раньше, уведомление не создаётся.
	CreateWithLog(ctx context.Context, n Notification, sentOn time.Time) (Notification, bool, error)
	// CreateSummary пишет сводное уведомление без записи в журнал.
	CreateSummary(ctx context.Context, n Notification) (Notification, error)
	ListByRecipient(ctx context.Context, recipientID int64, unreadOnly bool, limit int) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID int64) (int, error)
	MarkRead(ctx context.Context, recipientID, id int64) error
	MarkAllRead(ctx context.Context, recipientID int64) (int64, error)
}

// BatchRepo управляет отложенными уведомлениями.
type BatchRepo interface {
	// CreateBatchedWithLog — батч-аналог NotificationRepo.CreateWithLog.
	CreateBatchedWithLog(ctx context.Context, b BatchedNotification, sentOn time.Time) (BatchedNotification, bool, error)
	// ListDue возвращает необработанные записи со scheduled_for <= now.
	ListDue(ctx context.Context, now time.Time) ([]BatchedNotification, error)
	// MarkProcessed помечает записи обработанными. Уже обработанные
	// записи не затрагиваются повторно.
	MarkProcessed(ctx context.Context, ids []int64, now time.Time) (int64, error)
}

// NotificationSink принимает решение о немедленной либо отложенной
// доставке одного уведомления.
type NotificationSink interface {
	Emit(ctx context.Context, recipient Recipient, pref RecipientPreference, kind Kind, entity EntityRef, title, message string) (EmitOutcome, error)
}

// EmitOutcome описывает результат эмиссии.
type EmitOutcome struct {
	Created    bool
	Batched    bool
	Suppressed bool
}

// Mailer отправляет письмо получателю. Ошибки доставки логируются и
// никогда не прерывают вызвавший их сценарий.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
