package alerts

import (
	"time"

	"rentwatch/internal/domain"
)

// AddCalendarMonths прибавляет календарные месяцы. Если день месяца
// не существует в целевом месяце (31 января + 1 месяц), дата
// прижимается к последнему дню целевого месяца.
func AddCalendarMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	total := int(month) - 1 + months
	year += total / 12
	rem := total % 12
	if rem < 0 {
		rem += 12
		year--
	}
	target := time.Month(rem + 1)
	if last := lastDayOfMonth(year, target); day > last {
		day = last
	}
	hour, minute, sec := t.Clock()
	return time.Date(year, target, day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	// нулевой день следующего месяца — последний день текущего
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextIncreaseDate возвращает дату следующей индексации от якорной
// даты по заданной периодичности.
func NextIncreaseDate(anchor time.Time, freq domain.IncreaseFrequency) time.Time {
	return AddCalendarMonths(anchor, freq.Months())
}

// DaysBetween возвращает разность дат в днях с точностью до
// календарного дня; время суток игнорируется.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
