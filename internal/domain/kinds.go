package domain

// AlertCategory — базовая категория алерта, на которую получатель
// подписывается целиком. Вид уведомления уточняет категорию уровнем
// срочности.
type AlertCategory string

const (
	// CategoryExpiration — истечение срока договора аренды.
	CategoryExpiration AlertCategory = "expiration"
	// CategoryOverdue — просроченный счёт с ненулевым остатком.
	CategoryOverdue AlertCategory = "overdue"
	// CategoryDueSoon — счёт с приближающимся сроком оплаты.
	CategoryDueSoon AlertCategory = "due_soon"
	// CategoryIncrease — плановая индексация арендной платы.
	CategoryIncrease AlertCategory = "increase"
)

// Kind — вид уведомления с учётом уровня срочности. Дедупликация
// ведётся по виду, поэтому переход сущности на следующий уровень
// срочности порождает новое уведомление даже внутри окна.
type Kind string

const (
	KindExpirationAdvance Kind = "expiration-advance"
	KindExpirationUrgent  Kind = "expiration-urgent"
	KindExpirationExpired Kind = "expiration-expired"

	KindOverdueStandard Kind = "overdue-standard"
	KindOverdueUrgent   Kind = "overdue-urgent"
	KindOverdueCritical Kind = "overdue-critical"

	KindDueSoonStandard Kind = "due-soon-standard"
	KindDueSoonUrgent   Kind = "due-soon-urgent"

	KindIncreaseUpcoming Kind = "increase-upcoming"
	KindIncreaseOverdue  Kind = "increase-overdue"

	// Сводные уведомления, которые собирает разгрузка батчей.
	KindSummaryDaily  Kind = "summary-daily"
	KindSummaryWeekly Kind = "summary-weekly"
)

// Category возвращает базовую категорию вида.
func (k Kind) Category() AlertCategory {
	switch k {
	case KindExpirationAdvance, KindExpirationUrgent, KindExpirationExpired:
		return CategoryExpiration
	case KindOverdueStandard, KindOverdueUrgent, KindOverdueCritical:
		return CategoryOverdue
	case KindDueSoonStandard, KindDueSoonUrgent:
		return CategoryDueSoon
	case KindIncreaseUpcoming, KindIncreaseOverdue:
		return CategoryIncrease
	}
	return ""
}

// EntityType перечисляет типы исходных сущностей, на которые может
// ссылаться уведомление.
type EntityType string

const (
	EntityLease   EntityType = "lease"
	EntityInvoice EntityType = "invoice"
)

// EntityRef — типизированная ссылка на исходную сущность. Уведомление
// ссылается на сущность, но никогда не владеет ею.
type EntityRef struct {
	Type EntityType
	ID   int64
}

// LeaseRef возвращает ссылку на договор.
func LeaseRef(id int64) EntityRef { return EntityRef{Type: EntityLease, ID: id} }

// InvoiceRef возвращает ссылку на счёт.
func InvoiceRef(id int64) EntityRef { return EntityRef{Type: EntityInvoice, ID: id} }
