package alerts

import "rentwatch/internal/domain"

// ClassifyExpiration относит договор к уровню срочности по числу дней
// до окончания срока. Границы: истёк (<0), срочно (0–7),
// заблаговременно (8–30).
func ClassifyExpiration(daysLeft int) (domain.Kind, bool) {
	switch {
	case daysLeft < 0:
		return domain.KindExpirationExpired, true
	case daysLeft <= 7:
		return domain.KindExpirationUrgent, true
	case daysLeft <= 30:
		return domain.KindExpirationAdvance, true
	}
	return "", false
}

// ClassifyOverdue относит счёт к уровню срочности по числу дней
// просрочки. Границы: обычный (1–6), срочный (7–29), критический (≥30).
func ClassifyOverdue(daysOverdue int) (domain.Kind, bool) {
	switch {
	case daysOverdue >= 30:
		return domain.KindOverdueCritical, true
	case daysOverdue >= 7:
		return domain.KindOverdueUrgent, true
	case daysOverdue >= 1:
		return domain.KindOverdueStandard, true
	}
	return "", false
}

// ClassifyDueSoon относит счёт к уровню срочности по числу дней до
// срока оплаты. Границы: срочный (0–3), обычный (4–7).
func ClassifyDueSoon(daysLeft int) (domain.Kind, bool) {
	switch {
	case daysLeft < 0:
		return "", false
	case daysLeft <= 3:
		return domain.KindDueSoonUrgent, true
	case daysLeft <= 7:
		return domain.KindDueSoonStandard, true
	}
	return "", false
}

// ClassifyIncrease относит плановую индексацию к уровню срочности по
// числу дней до расчётной даты. Границы: просрочена (<0), предстоит
// (0–lookaheadDays).
func ClassifyIncrease(daysUntil, lookaheadDays int) (domain.Kind, bool) {
	switch {
	case daysUntil < 0:
		return domain.KindIncreaseOverdue, true
	case daysUntil <= lookaheadDays:
		return domain.KindIncreaseUpcoming, true
	}
	return "", false
}
