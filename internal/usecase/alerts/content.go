package alerts

import (
	"fmt"
	"time"

	"rentwatch/internal/domain"
)

const dateLayout = "02.01.2006"

func formatMoney(v float64) string {
	return fmt.Sprintf("%.2f €", v)
}

func plural(n int, one, few, many string) string {
	n = n % 100
	if n >= 11 && n <= 14 {
		return many
	}
	switch n % 10 {
	case 1:
		return one
	case 2, 3, 4:
		return few
	}
	return many
}

// days возвращает "N дней" с правильной формой слова.
func days(n int) string {
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("%d %s", n, plural(n, "день", "дня", "дней"))
}

// expirationContent строит заголовок и текст уведомления об истечении
// срока договора.
func expirationContent(kind domain.Kind, lease domain.Lease, daysLeft int) (string, string) {
	end := lease.EndDate.Format(dateLayout)
	switch kind {
	case domain.KindExpirationExpired:
		title := fmt.Sprintf("Договор по объекту %s истёк", lease.UnitLabel)
		msg := fmt.Sprintf("Срок договора аренды по объекту %s истёк %s (%s назад). Требуется продление или расторжение.",
			lease.UnitLabel, end, days(daysLeft))
		return title, msg
	case domain.KindExpirationUrgent:
		title := fmt.Sprintf("Договор по объекту %s истекает через %s", lease.UnitLabel, days(daysLeft))
		msg := fmt.Sprintf("Срок договора аренды по объекту %s заканчивается %s. До окончания осталось %s.",
			lease.UnitLabel, end, days(daysLeft))
		return title, msg
	default:
		title := fmt.Sprintf("Приближается окончание договора по объекту %s", lease.UnitLabel)
		msg := fmt.Sprintf("Срок договора аренды по объекту %s заканчивается %s (через %s). Рекомендуем заранее обсудить продление.",
			lease.UnitLabel, end, days(daysLeft))
		return title, msg
	}
}

// overdueContent строит заголовок и текст уведомления о просроченном счёте.
func overdueContent(kind domain.Kind, inv domain.Invoice, daysOverdue int) (string, string) {
	due := inv.DueDate.Format(dateLayout)
	switch kind {
	case domain.KindOverdueCritical:
		title := fmt.Sprintf("Критическая просрочка по счёту %s", inv.Number)
		msg := fmt.Sprintf("Счёт %s просрочен на %s (срок оплаты %s). Остаток к оплате: %s. Возможна передача дела на взыскание.",
			inv.Number, days(daysOverdue), due, formatMoney(inv.Balance))
		return title, msg
	case domain.KindOverdueUrgent:
		title := fmt.Sprintf("Счёт %s просрочен на %s", inv.Number, days(daysOverdue))
		msg := fmt.Sprintf("Счёт %s не оплачен, срок истёк %s. Остаток к оплате: %s. Просим погасить задолженность.",
			inv.Number, due, formatMoney(inv.Balance))
		return title, msg
	default:
		title := fmt.Sprintf("Счёт %s просрочен", inv.Number)
		msg := fmt.Sprintf("Срок оплаты счёта %s истёк %s. Остаток к оплате: %s.",
			inv.Number, due, formatMoney(inv.Balance))
		return title, msg
	}
}

// dueSoonContent строит заголовок и текст напоминания о приближающемся
// сроке оплаты.
func dueSoonContent(kind domain.Kind, inv domain.Invoice, daysLeft int) (string, string) {
	due := inv.DueDate.Format(dateLayout)
	if kind == domain.KindDueSoonUrgent {
		title := fmt.Sprintf("Счёт %s нужно оплатить до %s", inv.Number, due)
		msg := fmt.Sprintf("До срока оплаты счёта %s осталось %s (до %s). Сумма к оплате: %s.",
			inv.Number, days(daysLeft), due, formatMoney(inv.Balance))
		return title, msg
	}
	title := fmt.Sprintf("Скоро срок оплаты счёта %s", inv.Number)
	msg := fmt.Sprintf("Срок оплаты счёта %s наступает %s (через %s). Сумма к оплате: %s.",
		inv.Number, due, days(daysLeft), formatMoney(inv.Balance))
	return title, msg
}

// increaseContent строит заголовок и текст уведомления об индексации
// арендной платы.
func increaseContent(kind domain.Kind, lease domain.Lease, next time.Time, daysUntil int) (string, string) {
	date := next.Format(dateLayout)
	if kind == domain.KindIncreaseOverdue {
		title := fmt.Sprintf("Пропущена индексация по объекту %s", lease.UnitLabel)
		msg := fmt.Sprintf("Плановая индексация арендной платы по объекту %s должна была пройти %s (%s назад). Текущая ставка: %s в месяц.",
			lease.UnitLabel, date, days(daysUntil), formatMoney(lease.MonthlyRent))
		return title, msg
	}
	title := fmt.Sprintf("Предстоит индексация по объекту %s", lease.UnitLabel)
	msg := fmt.Sprintf("Плановая индексация арендной платы по объекту %s назначена на %s (через %s). Текущая ставка: %s в месяц.",
		lease.UnitLabel, date, days(daysUntil), formatMoney(lease.MonthlyRent))
	return title, msg
}
