package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"rentwatch/internal/domain"
	"rentwatch/internal/infra/metrics"
)

// Имена чекеров: используются в метриках и в логах.
const (
	CheckerExpiration = "expiration"
	CheckerOverdue    = "overdue"
	CheckerDueSoon    = "due_soon"
	CheckerIncrease   = "increase"
)

// Thresholds задаёт горизонты поиска чекеров.
type Thresholds struct {
	// ExpirationDays — за сколько дней до окончания договора начинать
	// уведомлять.
	ExpirationDays int
	// DueSoonDays — горизонт напоминаний о приближающемся сроке оплаты.
	DueSoonDays int
	// IncreaseDays — за сколько дней до индексации начинать уведомлять.
	IncreaseDays int
}

// Service отвечает за проверку сущностей и эмиссию уведомлений.
// Каждый чекер пробегает свою выборку, классифицирует срочность,
// сверяется с настройками получателя и передаёт уведомление стоку.
type Service struct {
	store      domain.EntityStore
	prefs      domain.PreferenceRepo
	sink       domain.NotificationSink
	thresholds Thresholds
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService создаёт сервис чекеров.
func NewService(store domain.EntityStore, prefs domain.PreferenceRepo, sink domain.NotificationSink, thresholds Thresholds, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		prefs:      prefs,
		sink:       sink,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// ScanExpiringLeases проверяет договоры, срок которых истекает или истёк.
func (s *Service) ScanExpiringLeases(ctx context.Context) (domain.ScanResult, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDurationSeconds.WithLabelValues(CheckerExpiration).Observe(time.Since(start).Seconds())
	}()

	result := domain.ScanResult{Checker: CheckerExpiration}
	ref := s.now()
	leases, err := s.store.FindExpiringLeases(ctx, ref, s.thresholds.ExpirationDays)
	if err != nil {
		return result, fmt.Errorf("выборка истекающих договоров: %w", err)
	}
	for _, lease := range leases {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		daysLeft := DaysBetween(ref, lease.EndDate)
		kind, ok := ClassifyExpiration(daysLeft)
		if !ok {
			s.countSkip(CheckerExpiration, &result)
			continue
		}
		title, message := expirationContent(kind, lease, daysLeft)
		s.emit(ctx, CheckerExpiration, &result, lease.RecipientID, kind, domain.LeaseRef(lease.ID), title, message, -1)
	}
	return result, nil
}

// ScanOverdueInvoices проверяет счета с прошедшим сроком оплаты.
func (s *Service) ScanOverdueInvoices(ctx context.Context) (domain.ScanResult, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDurationSeconds.WithLabelValues(CheckerOverdue).Observe(time.Since(start).Seconds())
	}()

	result := domain.ScanResult{Checker: CheckerOverdue}
	ref := s.now()
	invoices, err := s.store.FindOverdueInvoices(ctx, ref)
	if err != nil {
		return result, fmt.Errorf("выборка просроченных счетов: %w", err)
	}
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		daysOverdue := DaysBetween(inv.DueDate, ref)
		kind, ok := ClassifyOverdue(daysOverdue)
		if !ok {
			s.countSkip(CheckerOverdue, &result)
			continue
		}
		title, message := overdueContent(kind, inv, daysOverdue)
		s.emit(ctx, CheckerOverdue, &result, inv.RecipientID, kind, domain.InvoiceRef(inv.ID), title, message, -1)
	}
	return result, nil
}

// ScanInvoicesDueSoon проверяет счета с приближающимся сроком оплаты.
// Горизонт напоминания дополнительно ограничивается персональной
// настройкой lookahead_days получателя.
func (s *Service) ScanInvoicesDueSoon(ctx context.Context) (domain.ScanResult, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDurationSeconds.WithLabelValues(CheckerDueSoon).Observe(time.Since(start).Seconds())
	}()

	result := domain.ScanResult{Checker: CheckerDueSoon}
	ref := s.now()
	invoices, err := s.store.FindInvoicesDueSoon(ctx, ref, s.thresholds.DueSoonDays)
	if err != nil {
		return result, fmt.Errorf("выборка счетов со скорым сроком: %w", err)
	}
	for _, inv := range invoices {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		daysLeft := DaysBetween(ref, inv.DueDate)
		kind, ok := ClassifyDueSoon(daysLeft)
		if !ok {
			s.countSkip(CheckerDueSoon, &result)
			continue
		}
		title, message := dueSoonContent(kind, inv, daysLeft)
		s.emit(ctx, CheckerDueSoon, &result, inv.RecipientID, kind, domain.InvoiceRef(inv.ID), title, message, daysLeft)
	}
	return result, nil
}

// ScanRentIncreases проверяет договоры с настроенной индексацией.
func (s *Service) ScanRentIncreases(ctx context.Context) (domain.ScanResult, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDurationSeconds.WithLabelValues(CheckerIncrease).Observe(time.Since(start).Seconds())
	}()

	result := domain.ScanResult{Checker: CheckerIncrease}
	ref := s.now()
	leases, err := s.store.FindLeasesWithIncrease(ctx, ref)
	if err != nil {
		return result, fmt.Errorf("выборка договоров с индексацией: %w", err)
	}
	for _, lease := range leases {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		kind, next, daysUntil, ok := s.classifyLeaseIncrease(lease, ref)
		if !ok {
			s.countSkip(CheckerIncrease, &result)
			continue
		}
		title, message := increaseContent(kind, lease, next, daysUntil)
		s.emit(ctx, CheckerIncrease, &result, lease.RecipientID, kind, domain.LeaseRef(lease.ID), title, message, -1)
	}
	return result, nil
}

// RunAll прогоняет все четыре чекера подряд. Ошибка одного чекера не
// останавливает остальные; возвращается первая из встреченных.
func (s *Service) RunAll(ctx context.Context) ([]domain.ScanResult, error) {
	checks := []func(context.Context) (domain.ScanResult, error){
		s.ScanExpiringLeases,
		s.ScanOverdueInvoices,
		s.ScanInvoicesDueSoon,
		s.ScanRentIncreases,
	}
	var results []domain.ScanResult
	var firstErr error
	for _, check := range checks {
		result, err := check(ctx)
		results = append(results, result)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return results, err
			}
			s.logger.Error().Err(err).Str("checker", result.Checker).Msg("alerts: проход чекера завершился ошибкой")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return results, firstErr
}

// CheckLease прогоняет один договор через чекеры истечения и индексации.
func (s *Service) CheckLease(ctx context.Context, leaseID int64) (domain.ScanResult, error) {
	result := domain.ScanResult{Checker: CheckerExpiration}
	lease, err := s.store.GetLease(ctx, leaseID)
	if err != nil {
		return result, fmt.Errorf("получение договора: %w", err)
	}
	ref := s.now()

	if lease.Status == domain.LeaseActive {
		daysLeft := DaysBetween(ref, lease.EndDate)
		if kind, ok := ClassifyExpiration(daysLeft); ok {
			title, message := expirationContent(kind, lease, daysLeft)
			s.emit(ctx, CheckerExpiration, &result, lease.RecipientID, kind, domain.LeaseRef(lease.ID), title, message, -1)
		}
		if kind, next, daysUntil, ok := s.classifyLeaseIncrease(lease, ref); ok {
			title, message := increaseContent(kind, lease, next, daysUntil)
			s.emit(ctx, CheckerIncrease, &result, lease.RecipientID, kind, domain.LeaseRef(lease.ID), title, message, -1)
		}
	}
	return result, nil
}

// CheckInvoice прогоняет один счёт через чекеры просрочки и скорого срока.
func (s *Service) CheckInvoice(ctx context.Context, invoiceID int64) (domain.ScanResult, error) {
	result := domain.ScanResult{Checker: CheckerOverdue}
	inv, err := s.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return result, fmt.Errorf("получение счёта: %w", err)
	}
	if inv.Balance <= 0 {
		return result, nil
	}
	ref := s.now()

	if daysOverdue := DaysBetween(inv.DueDate, ref); daysOverdue >= 1 {
		if kind, ok := ClassifyOverdue(daysOverdue); ok {
			title, message := overdueContent(kind, inv, daysOverdue)
			s.emit(ctx, CheckerOverdue, &result, inv.RecipientID, kind, domain.InvoiceRef(inv.ID), title, message, -1)
		}
		return result, nil
	}

	daysLeft := DaysBetween(ref, inv.DueDate)
	if kind, ok := ClassifyDueSoon(daysLeft); ok {
		title, message := dueSoonContent(kind, inv, daysLeft)
		s.emit(ctx, CheckerDueSoon, &result, inv.RecipientID, kind, domain.InvoiceRef(inv.ID), title, message, daysLeft)
	}
	return result, nil
}

// classifyLeaseIncrease вычисляет ближайшую дату индексации договора и
// классифицирует её срочность.
func (s *Service) classifyLeaseIncrease(lease domain.Lease, ref time.Time) (domain.Kind, time.Time, int, bool) {
	if lease.IncreaseFrequency.Months() == 0 {
		return "", time.Time{}, 0, false
	}
	anchor := lease.StartDate
	if lease.IncreaseAnchor != nil {
		anchor = *lease.IncreaseAnchor
	}
	next := NextIncreaseDate(anchor, lease.IncreaseFrequency)
	// Дата отсчёта может лежать далеко в прошлом: мотаем вперёд, пока
	// не получим первую индексацию, которая ещё не ушла за горизонт.
	for DaysBetween(ref, next) < 0 && DaysBetween(ref, NextIncreaseDate(next, lease.IncreaseFrequency)) <= 0 {
		next = NextIncreaseDate(next, lease.IncreaseFrequency)
	}
	daysUntil := DaysBetween(ref, next)
	kind, ok := ClassifyIncrease(daysUntil, s.thresholds.IncreaseDays)
	return kind, next, daysUntil, ok
}

// emit подгружает получателя с настройками и передаёт уведомление стоку.
// Итоги складываются в result; ошибка одной сущности не прерывает проход.
// daysLeft >= 0 включает сверку с персональным горизонтом получателя.
func (s *Service) emit(ctx context.Context, checker string, result *domain.ScanResult, recipientID int64, kind domain.Kind, entity domain.EntityRef, title, message string, daysLeft int) {
	recipient, err := s.store.GetRecipient(ctx, recipientID)
	if err != nil {
		result.Errors++
		metrics.ObserveScanOutcome(checker, "error")
		s.logger.Error().Err(err).Int64("recipient_id", recipientID).Str("kind", string(kind)).Msg("alerts: получатель недоступен")
		return
	}
	pref, _, err := s.prefs.ResolveOrDefault(ctx, recipientID)
	if err != nil {
		result.Errors++
		metrics.ObserveScanOutcome(checker, "error")
		s.logger.Error().Err(err).Int64("recipient_id", recipientID).Msg("alerts: получение настроек")
		return
	}
	if !pref.Allows(kind.Category()) {
		s.countSkip(checker, result)
		return
	}
	if daysLeft >= 0 && daysLeft > pref.LookaheadDays {
		s.countSkip(checker, result)
		return
	}

	outcome, err := s.sink.Emit(ctx, recipient, pref, kind, entity, title, message)
	if err != nil {
		result.Errors++
		metrics.ObserveScanOutcome(checker, "error")
		s.logger.Error().Err(err).Int64("recipient_id", recipientID).Str("kind", string(kind)).Msg("alerts: эмиссия уведомления")
		return
	}
	switch {
	case outcome.Created:
		result.Created++
		result.CountKind(kind)
		metrics.ObserveScanOutcome(checker, "created")
	case outcome.Batched:
		result.Batched++
		result.CountKind(kind)
		metrics.ObserveScanOutcome(checker, "batched")
	case outcome.Suppressed:
		result.Suppressed++
		metrics.ObserveScanOutcome(checker, "suppressed")
	}
}

func (s *Service) countSkip(checker string, result *domain.ScanResult) {
	result.Skipped++
	metrics.ObserveScanOutcome(checker, "skipped")
}
