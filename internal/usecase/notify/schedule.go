package notify

import "time"

// Час локального времени получателя, в который доставляются сводки.
const summaryHour = 9

// NextDaily возвращает ближайший слот ежедневной сводки: завтра в
// 09:00 локального времени now.
func NextDaily(now time.Time) time.Time {
	next := now.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), summaryHour, 0, 0, 0, now.Location())
}

// NextWeekly возвращает ближайший слот еженедельной сводки: следующий
// понедельник в 09:00 локального времени now. Из понедельника слот
// уезжает на неделю вперёд.
func NextWeekly(now time.Time) time.Time {
	daysAhead := (int(time.Monday) - int(now.Weekday()) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	next := now.AddDate(0, 0, daysAhead)
	return time.Date(next.Year(), next.Month(), next.Day(), summaryHour, 0, 0, 0, now.Location())
}
