package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rentwatch/internal/domain"
	"rentwatch/internal/infra/metrics"
)

// ErrRecipientNotFound возвращается, когда получатель отсутствует.
var ErrRecipientNotFound = errors.New("получатель не найден")

// ErrNotificationNotFound возвращается, когда уведомление отсутствует
// либо принадлежит другому получателю.
var ErrNotificationNotFound = errors.New("уведомление не найдено")

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.EntityStore = (*Postgres)(nil)
var _ domain.PreferenceRepo = (*Postgres)(nil)
var _ domain.DedupLog = (*Postgres)(nil)
var _ domain.NotificationRepo = (*Postgres)(nil)
var _ domain.BatchRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

func entityColumns(ref domain.EntityRef) (sql.NullString, sql.NullInt64) {
	if ref.Type == "" {
		return sql.NullString{}, sql.NullInt64{}
	}
	return sql.NullString{String: string(ref.Type), Valid: true},
		sql.NullInt64{Int64: ref.ID, Valid: true}
}

func scanEntityRef(entityType sql.NullString, entityID sql.NullInt64) domain.EntityRef {
	if !entityType.Valid || !entityID.Valid {
		return domain.EntityRef{}
	}
	return domain.EntityRef{Type: domain.EntityType(entityType.String), ID: entityID.Int64}
}

// ResolveOrDefault возвращает настройки получателя, создавая запись по
// умолчанию при первом обращении. Конкурентное первое обращение
// разрешается upsert-ом: оба вызова получают одну и ту же строку.
func (p *Postgres) ResolveOrDefault(ctx context.Context, recipientID int64) (domain.RecipientPreference, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		pref    domain.RecipientPreference
		created bool
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO recipient_preferences (recipient_id)
VALUES ($1)
ON CONFLICT (recipient_id) DO UPDATE SET recipient_id = EXCLUDED.recipient_id
RETURNING recipient_id, expiration_enabled, overdue_enabled, due_soon_enabled, increase_enabled, frequency, lookahead_days, email_enabled, timezone, created_at, updated_at, (xmax = 0) AS inserted
`, recipientID).Scan(&pref.RecipientID, &pref.ExpirationEnabled, &pref.OverdueEnabled, &pref.DueSoonEnabled, &pref.IncreaseEnabled, &pref.Frequency, &pref.LookaheadDays, &pref.EmailEnabled, &pref.Timezone, &pref.CreatedAt, &pref.UpdatedAt, &created)
	metrics.ObserveNetworkRequest("postgres", "preferences_resolve", "recipient_preferences", start, err)
	if err != nil {
		return domain.RecipientPreference{}, false, err
	}
	return pref, created, nil
}

// Update сохраняет настройки получателя.
func (p *Postgres) Update(ctx context.Context, pref domain.RecipientPreference) (domain.RecipientPreference, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
UPDATE recipient_preferences
SET expiration_enabled=$2, overdue_enabled=$3, due_soon_enabled=$4, increase_enabled=$5,
    frequency=$6, lookahead_days=$7, email_enabled=$8, timezone=$9, updated_at=now()
WHERE recipient_id=$1
RETURNING recipient_id, expiration_enabled, overdue_enabled, due_soon_enabled, increase_enabled, frequency, lookahead_days, email_enabled, timezone, created_at, updated_at
`, pref.RecipientID, pref.ExpirationEnabled, pref.OverdueEnabled, pref.DueSoonEnabled, pref.IncreaseEnabled, pref.Frequency, pref.LookaheadDays, pref.EmailEnabled, pref.Timezone).
		Scan(&pref.RecipientID, &pref.ExpirationEnabled, &pref.OverdueEnabled, &pref.DueSoonEnabled, &pref.IncreaseEnabled, &pref.Frequency, &pref.LookaheadDays, &pref.EmailEnabled, &pref.Timezone, &pref.CreatedAt, &pref.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "preferences_update", "recipient_preferences", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RecipientPreference{}, ErrRecipientNotFound
	}
	return pref, err
}

// HasRecent проверяет наличие отправки внутри окна дедупликации.
// Окно считается от переданной даты ref, а не от часов сервера БД:
// recordLog пишет sent_on в UTC, и опорная дата должна совпадать.
func (p *Postgres) HasRecent(ctx context.Context, recipientID int64, kind domain.Kind, entity domain.EntityRef, ref time.Time, windowDays int) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if windowDays <= 0 {
		windowDays = 1
	}
	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1 FROM notification_log
    WHERE recipient_id=$1 AND kind=$2 AND entity_type=$3 AND entity_id=$4
      AND sent_on > ($5::date - $6::int)
)
`, recipientID, kind, string(entity.Type), entity.ID, ref.UTC().Format("2006-01-02"), windowDays).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "notification_log_has_recent", "notification_log", start, err)
	return exists, err
}

// PurgeOlderThan удаляет записи журнала старше keepDays дней.
func (p *Postgres) PurgeOlderThan(ctx context.Context, keepDays int) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `DELETE FROM notification_log WHERE sent_on < (CURRENT_DATE - $1::int)`, keepDays)
	metrics.ObserveNetworkRequest("postgres", "notification_log_purge", "notification_log", start, err)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// recordLog пишет запись журнала внутри транзакции. Возвращает false,
// если уникальный индекс за этот день уже занят.
func recordLog(ctx context.Context, tx pgx.Tx, recipientID int64, kind domain.Kind, entity domain.EntityRef, sentOn time.Time) (bool, error) {
	start := time.Now()
	res, err := tx.Exec(ctx, `
INSERT INTO notification_log (recipient_id, kind, entity_type, entity_id, sent_on)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT ON CONSTRAINT uq_notification_log DO NOTHING
`, recipientID, kind, string(entity.Type), entity.ID, sentOn.UTC().Format("2006-01-02"))
	metrics.ObserveNetworkRequest("postgres", "notification_log_record", "notification_log", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// CreateWithLog атомарно создаёт уведомление и запись журнала отправок.
func (p *Postgres) CreateWithLog(ctx context.Context, n domain.Notification, sentOn time.Time) (domain.Notification, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "notifications", start, err)
	if err != nil {
		return domain.Notification{}, false, err
	}
	defer tx.Rollback(ctx)

	recorded, err := recordLog(ctx, tx, n.RecipientID, n.Kind, n.Entity, sentOn)
	if err != nil {
		return domain.Notification{}, false, err
	}
	if !recorded {
		return domain.Notification{}, false, nil
	}

	entityType, entityID := entityColumns(n.Entity)
	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO notifications (recipient_id, kind, title, message, entity_type, entity_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at
`, n.RecipientID, n.Kind, n.Title, n.Message, entityType, entityID).Scan(&n.ID, &n.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "notifications_insert", "notifications", start, err)
	if err != nil {
		return domain.Notification{}, false, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "notifications", start, err)
	if err != nil {
		return domain.Notification{}, false, err
	}
	return n, true, nil
}

// CreateSummary создаёт сводное уведомление без записи в журнал.
func (p *Postgres) CreateSummary(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	entityType, entityID := entityColumns(n.Entity)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO notifications (recipient_id, kind, title, message, entity_type, entity_id)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at
`, n.RecipientID, n.Kind, n.Title, n.Message, entityType, entityID).Scan(&n.ID, &n.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "notifications_insert_summary", "notifications", start, err)
	return n, err
}

// ListByRecipient возвращает уведомления получателя, новые первыми.
func (p *Postgres) ListByRecipient(ctx context.Context, recipientID int64, unreadOnly bool, limit int) ([]domain.Notification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, recipient_id, kind, title, message, entity_type, entity_id, is_read, created_at
FROM notifications
WHERE recipient_id=$1`
	if unreadOnly {
		query += ` AND is_read=false`
	}
	query += `
ORDER BY created_at DESC
LIMIT $2`

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, recipientID, limit)
	metrics.ObserveNetworkRequest("postgres", "notifications_list", "notifications", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []domain.Notification
	for rows.Next() {
		var (
			n          domain.Notification
			entityType sql.NullString
			entityID   sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Kind, &n.Title, &n.Message, &entityType, &entityID, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Entity = scanEntityRef(entityType, entityID)
		list = append(list, n)
	}
	return list, rows.Err()
}

// CountUnread считает непрочитанные уведомления получателя.
func (p *Postgres) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND is_read=false`, recipientID).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "notifications_count_unread", "notifications", start, err)
	return count, err
}

// MarkRead помечает уведомление прочитанным.
func (p *Postgres) MarkRead(ctx context.Context, recipientID, id int64) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE notifications SET is_read=true WHERE id=$1 AND recipient_id=$2`, id, recipientID)
	metrics.ObserveNetworkRequest("postgres", "notifications_mark_read", "notifications", start, err)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead помечает все уведомления получателя прочитанными.
func (p *Postgres) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `UPDATE notifications SET is_read=true WHERE recipient_id=$1 AND is_read=false`, recipientID)
	metrics.ObserveNetworkRequest("postgres", "notifications_mark_all_read", "notifications", start, err)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// CreateBatchedWithLog атомарно создаёт отложенное уведомление и
// запись журнала отправок.
func (p *Postgres) CreateBatchedWithLog(ctx context.Context, b domain.BatchedNotification, sentOn time.Time) (domain.BatchedNotification, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "batched_notifications", start, err)
	if err != nil {
		return domain.BatchedNotification{}, false, err
	}
	defer tx.Rollback(ctx)

	recorded, err := recordLog(ctx, tx, b.RecipientID, b.Kind, b.Entity, sentOn)
	if err != nil {
		return domain.BatchedNotification{}, false, err
	}
	if !recorded {
		return domain.BatchedNotification{}, false, nil
	}

	entityType, entityID := entityColumns(b.Entity)
	start = time.Now()
	err = tx.QueryRow(ctx, `
INSERT INTO batched_notifications (recipient_id, bucket, kind, title, message, entity_type, entity_id, scheduled_for)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at
`, b.RecipientID, b.Bucket, b.Kind, b.Title, b.Message, entityType, entityID, b.ScheduledFor).Scan(&b.ID, &b.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "batched_insert", "batched_notifications", start, err)
	if err != nil {
		return domain.BatchedNotification{}, false, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "batched_notifications", start, err)
	if err != nil {
		return domain.BatchedNotification{}, false, err
	}
	return b, true, nil
}

// ListDue возвращает необработанные записи, готовые к выгрузке.
func (p *Postgres) ListDue(ctx context.Context, now time.Time) ([]domain.BatchedNotification, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, bucket, kind, title, message, entity_type, entity_id, scheduled_for, processed, processed_at, created_at
FROM batched_notifications
WHERE scheduled_for <= $1 AND processed = false
ORDER BY recipient_id, bucket, created_at
`, now)
	metrics.ObserveNetworkRequest("postgres", "batched_list_due", "batched_notifications", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []domain.BatchedNotification
	for rows.Next() {
		var (
			b           domain.BatchedNotification
			entityType  sql.NullString
			entityID    sql.NullInt64
			processedAt sql.NullTime
		)
		if err := rows.Scan(&b.ID, &b.RecipientID, &b.Bucket, &b.Kind, &b.Title, &b.Message, &entityType, &entityID, &b.ScheduledFor, &b.Processed, &processedAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Entity = scanEntityRef(entityType, entityID)
		if processedAt.Valid {
			ts := processedAt.Time
			b.ProcessedAt = &ts
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// MarkProcessed помечает записи обработанными; уже обработанные
// записи пропускаются.
func (p *Postgres) MarkProcessed(ctx context.Context, ids []int64, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE batched_notifications
SET processed=true, processed_at=$2
WHERE id = ANY($1) AND processed=false
`, ids, now)
	metrics.ObserveNetworkRequest("postgres", "batched_mark_processed", "batched_notifications", start, err)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// FindExpiringLeases возвращает действующие договоры, срок которых
// истекает в ближайшие thresholdDays дней либо уже истёк.
func (p *Postgres) FindExpiringLeases(ctx context.Context, ref time.Time, thresholdDays int) ([]domain.Lease, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	deadline := ref.AddDate(0, 0, thresholdDays)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, unit_label, start_date, end_date, monthly_rent, status, increase_frequency, increase_anchor, created_at
FROM leases
WHERE status=$1 AND end_date <= $2
ORDER BY end_date
`, domain.LeaseActive, deadline)
	metrics.ObserveNetworkRequest("postgres", "leases_find_expiring", "leases", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLeases(rows)
}

// FindLeasesWithIncrease возвращает действующие договоры с настроенной
// индексацией арендной платы.
func (p *Postgres) FindLeasesWithIncrease(ctx context.Context, ref time.Time) ([]domain.Lease, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, unit_label, start_date, end_date, monthly_rent, status, increase_frequency, increase_anchor, created_at
FROM leases
WHERE status=$1 AND increase_frequency IS NOT NULL AND increase_anchor IS NOT NULL
ORDER BY id
`, domain.LeaseActive)
	metrics.ObserveNetworkRequest("postgres", "leases_find_with_increase", "leases", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLeases(rows)
}

// GetLease возвращает договор по идентификатору.
func (p *Postgres) GetLease(ctx context.Context, id int64) (domain.Lease, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, unit_label, start_date, end_date, monthly_rent, status, increase_frequency, increase_anchor, created_at
FROM leases WHERE id=$1
`, id)
	metrics.ObserveNetworkRequest("postgres", "leases_get", "leases", start, err)
	if err != nil {
		return domain.Lease{}, err
	}
	defer rows.Close()
	leases, err := scanLeases(rows)
	if err != nil {
		return domain.Lease{}, err
	}
	if len(leases) == 0 {
		return domain.Lease{}, fmt.Errorf("договор %d не найден", id)
	}
	return leases[0], nil
}

func scanLeases(rows pgx.Rows) ([]domain.Lease, error) {
	var leases []domain.Lease
	for rows.Next() {
		var (
			l         domain.Lease
			frequency sql.NullString
			anchor    sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.RecipientID, &l.UnitLabel, &l.StartDate, &l.EndDate, &l.MonthlyRent, &l.Status, &frequency, &anchor, &l.CreatedAt); err != nil {
			return nil, err
		}
		if frequency.Valid {
			l.IncreaseFrequency = domain.IncreaseFrequency(frequency.String)
		}
		if anchor.Valid {
			ts := anchor.Time
			l.IncreaseAnchor = &ts
		}
		leases = append(leases, l)
	}
	return leases, rows.Err()
}

// FindOverdueInvoices возвращает счета с прошедшим сроком оплаты и
// положительным остатком.
func (p *Postgres) FindOverdueInvoices(ctx context.Context, ref time.Time) ([]domain.Invoice, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, lease_id, number, amount, balance, due_date, status, created_at
FROM invoices
WHERE due_date < $1 AND balance > 0
ORDER BY due_date
`, ref)
	metrics.ObserveNetworkRequest("postgres", "invoices_find_overdue", "invoices", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvoices(rows)
}

// FindInvoicesDueSoon возвращает неоплаченные счета со сроком оплаты в
// ближайшие days дней.
func (p *Postgres) FindInvoicesDueSoon(ctx context.Context, ref time.Time, days int) ([]domain.Invoice, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	deadline := ref.AddDate(0, 0, days)
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, lease_id, number, amount, balance, due_date, status, created_at
FROM invoices
WHERE due_date >= $1 AND due_date <= $2 AND balance > 0
ORDER BY due_date
`, ref, deadline)
	metrics.ObserveNetworkRequest("postgres", "invoices_find_due_soon", "invoices", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvoices(rows)
}

// GetInvoice возвращает счёт по идентификатору.
func (p *Postgres) GetInvoice(ctx context.Context, id int64) (domain.Invoice, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, lease_id, number, amount, balance, due_date, status, created_at
FROM invoices WHERE id=$1
`, id)
	metrics.ObserveNetworkRequest("postgres", "invoices_get", "invoices", start, err)
	if err != nil {
		return domain.Invoice{}, err
	}
	defer rows.Close()
	invoices, err := scanInvoices(rows)
	if err != nil {
		return domain.Invoice{}, err
	}
	if len(invoices) == 0 {
		return domain.Invoice{}, fmt.Errorf("счёт %d не найден", id)
	}
	return invoices[0], nil
}

func scanInvoices(rows pgx.Rows) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(&inv.ID, &inv.RecipientID, &inv.LeaseID, &inv.Number, &inv.Amount, &inv.Balance, &inv.DueDate, &inv.Status, &inv.CreatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// GetRecipient возвращает получателя по идентификатору.
func (p *Postgres) GetRecipient(ctx context.Context, id int64) (domain.Recipient, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var r domain.Recipient
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT id, name, email FROM recipients WHERE id=$1`, id).Scan(&r.ID, &r.Name, &r.Email)
	metrics.ObserveNetworkRequest("postgres", "recipients_get", "recipients", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Recipient{}, ErrRecipientNotFound
	}
	return r, err
}
