package batch

import (
	"fmt"
	"strings"

	"rentwatch/internal/domain"
)

// Не более стольких пунктов на вид попадает в текст сводки, остальное
// сворачивается в "и ещё N".
const itemsPerKind = 3

// Порядок секций в сводке: от самого срочного к наименее срочному.
var sectionOrder = []domain.Kind{
	domain.KindOverdueCritical,
	domain.KindOverdueUrgent,
	domain.KindOverdueStandard,
	domain.KindExpirationExpired,
	domain.KindExpirationUrgent,
	domain.KindExpirationAdvance,
	domain.KindDueSoonUrgent,
	domain.KindDueSoonStandard,
	domain.KindIncreaseOverdue,
	domain.KindIncreaseUpcoming,
}

var sectionTitles = map[domain.Kind]string{
	domain.KindOverdueCritical:   "Критические просрочки",
	domain.KindOverdueUrgent:     "Серьёзные просрочки",
	domain.KindOverdueStandard:   "Просроченные счета",
	domain.KindExpirationExpired: "Истёкшие договоры",
	domain.KindExpirationUrgent:  "Договоры на исходе",
	domain.KindExpirationAdvance: "Договоры, истекающие скоро",
	domain.KindDueSoonUrgent:     "Счета, требующие оплаты в ближайшие дни",
	domain.KindDueSoonStandard:   "Счета с приближающимся сроком",
	domain.KindIncreaseOverdue:   "Пропущенные индексации",
	domain.KindIncreaseUpcoming:  "Предстоящие индексации",
}

// summaryContent собирает заголовок и текст сводного уведомления из
// отложенных пунктов одной корзины одного получателя.
func summaryContent(bucket domain.Bucket, items []domain.BatchedNotification) (string, string) {
	var title string
	if bucket == domain.BucketWeekly {
		title = fmt.Sprintf("Еженедельная сводка: новых уведомлений — %d", len(items))
	} else {
		title = fmt.Sprintf("Ежедневная сводка: новых уведомлений — %d", len(items))
	}

	byKind := make(map[domain.Kind][]domain.BatchedNotification)
	for _, item := range items {
		byKind[item.Kind] = append(byKind[item.Kind], item)
	}

	var b strings.Builder
	for _, kind := range sectionOrder {
		group := byKind[kind]
		if len(group) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s (%d):\n", sectionTitles[kind], len(group))
		shown := group
		if len(shown) > itemsPerKind {
			shown = shown[:itemsPerKind]
		}
		for _, item := range shown {
			fmt.Fprintf(&b, "— %s\n", item.Title)
		}
		if rest := len(group) - len(shown); rest > 0 {
			fmt.Fprintf(&b, "… и ещё %d\n", rest)
		}
	}
	return title, b.String()
}
