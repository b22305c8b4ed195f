package domain

import "time"

// Recipient описывает получателя уведомлений (арендатора).
type Recipient struct {
	ID    int64
	Name  string
	Email string
}

// LeaseStatus описывает состояние договора аренды.
type LeaseStatus string

const (
	// LeaseActive — договор действует.
	LeaseActive LeaseStatus = "active"
	// LeaseTerminated — договор расторгнут.
	LeaseTerminated LeaseStatus = "terminated"
)

// IncreaseFrequency описывает периодичность индексации арендной платы.
type IncreaseFrequency string

const (
	IncreaseMonthly    IncreaseFrequency = "monthly"
	IncreaseQuarterly  IncreaseFrequency = "quarterly"
	IncreaseSemiAnnual IncreaseFrequency = "semi_annual"
	IncreaseAnnual     IncreaseFrequency = "annual"
)

// Months возвращает число календарных месяцев между индексациями.
func (f IncreaseFrequency) Months() int {
	switch f {
	case IncreaseMonthly:
		return 1
	case IncreaseQuarterly:
		return 3
	case IncreaseSemiAnnual:
		return 6
	case IncreaseAnnual:
		return 12
	}
	return 0
}

// Lease описывает договор аренды.
type Lease struct {
	ID                int64
	RecipientID       int64
	UnitLabel         string
	StartDate         time.Time
	EndDate           time.Time
	MonthlyRent       float64
	Status            LeaseStatus
	IncreaseFrequency IncreaseFrequency
	IncreaseAnchor    *time.Time
	CreatedAt         time.Time
}

// Invoice описывает счёт на оплату аренды.
type Invoice struct {
	ID          int64
	RecipientID int64
	LeaseID     int64
	Number      string
	Amount      float64
	Balance     float64
	DueDate     time.Time
	Status      string
	CreatedAt   time.Time
}

// Notification представляет созданное уведомление получателя.
type Notification struct {
	ID          int64
	RecipientID int64
	Kind        Kind
	Title       string
	Message     string
	Entity      EntityRef
	IsRead      bool
	CreatedAt   time.Time
}

// DedupEntry — запись журнала отправок. Уникальна в разрезе
// (получатель, вид, сущность, день) и подавляет повторные отправки
// внутри окна дедупликации.
type DedupEntry struct {
	RecipientID int64
	Kind        Kind
	Entity      EntityRef
	SentOn      time.Time
}

// Frequency описывает режим доставки уведомлений получателю.
type Frequency string

const (
	// FrequencyImmediate — уведомление создаётся и доставляется сразу.
	FrequencyImmediate Frequency = "immediate"
	// FrequencyDaily — уведомления копятся и доставляются раз в день.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly — уведомления копятся и доставляются раз в неделю.
	FrequencyWeekly Frequency = "weekly"
)

// Valid сообщает, допустимо ли значение режима доставки.
func (f Frequency) Valid() bool {
	return f == FrequencyImmediate || f == FrequencyDaily || f == FrequencyWeekly
}

// RecipientPreference хранит настройки доставки конкретного получателя.
// Создаётся лениво при первом обращении со значениями по умолчанию.
type RecipientPreference struct {
	RecipientID       int64
	ExpirationEnabled bool
	OverdueEnabled    bool
	DueSoonEnabled    bool
	IncreaseEnabled   bool
	Frequency         Frequency
	LookaheadDays     int
	EmailEnabled      bool
	Timezone          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Allows сообщает, подписан ли получатель на указанную категорию алертов.
func (p RecipientPreference) Allows(cat AlertCategory) bool {
	switch cat {
	case CategoryExpiration:
		return p.ExpirationEnabled
	case CategoryOverdue:
		return p.OverdueEnabled
	case CategoryDueSoon:
		return p.DueSoonEnabled
	case CategoryIncrease:
		return p.IncreaseEnabled
	}
	return false
}

// Location возвращает часовой пояс получателя либо фолбэк.
func (p RecipientPreference) Location(fallback *time.Location) *time.Location {
	if p.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// Bucket описывает корзину отложенной доставки.
type Bucket string

const (
	BucketDaily  Bucket = "daily"
	BucketWeekly Bucket = "weekly"
)

// BucketFor возвращает корзину для режима доставки. Для immediate
// корзина не определена.
func BucketFor(f Frequency) (Bucket, bool) {
	switch f {
	case FrequencyDaily:
		return BucketDaily, true
	case FrequencyWeekly:
		return BucketWeekly, true
	}
	return "", false
}

// BatchedNotification — отложенное уведомление, ожидающее выгрузки
// в составе сводки.
type BatchedNotification struct {
	ID           int64
	RecipientID  int64
	Bucket       Bucket
	Kind         Kind
	Title        string
	Message      string
	Entity       EntityRef
	ScheduledFor time.Time
	Processed    bool
	ProcessedAt  *time.Time
	CreatedAt    time.Time
}

// ScanResult — итог одного прохода чекера.
type ScanResult struct {
	Checker    string
	Created    int
	Batched    int
	Suppressed int
	Skipped    int
	Errors     int
	ByKind     map[Kind]int
}

// CountKind учитывает созданное уведомление указанного вида.
func (r *ScanResult) CountKind(kind Kind) {
	if r.ByKind == nil {
		r.ByKind = make(map[Kind]int)
	}
	r.ByKind[kind]++
}

// DrainResult — итог одной выгрузки отложенных уведомлений.
type DrainResult struct {
	DailySent          int
	WeeklySent         int
	TotalBatched       int
	RecipientsNotified int
}
