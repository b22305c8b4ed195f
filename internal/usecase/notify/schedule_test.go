package notify

import (
	"testing"
	"time"
)

func TestNextDaily(t *testing.T) {
	now := time.Date(2026, time.March, 3, 14, 30, 0, 0, time.UTC) // вторник
	want := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	if got := NextDaily(now); !got.Equal(want) {
		t.Fatalf("ожидали %v, получили %v", want, got)
	}
}

func TestNextDailyBeforeNine(t *testing.T) {
	// Даже до 09:00 слот всегда завтрашний, не сегодняшний.
	now := time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC)
	want := time.Date(2026, time.March, 4, 9, 0, 0, 0, time.UTC)
	if got := NextDaily(now); !got.Equal(want) {
		t.Fatalf("ожидали %v, получили %v", want, got)
	}
}

func TestNextWeeklyMidweek(t *testing.T) {
	now := time.Date(2026, time.March, 5, 10, 0, 0, 0, time.UTC) // четверг
	want := time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC) // понедельник
	if got := NextWeekly(now); !got.Equal(want) {
		t.Fatalf("ожидали %v, получили %v", want, got)
	}
}

func TestNextWeeklyFromMonday(t *testing.T) {
	now := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)  // понедельник
	want := time.Date(2026, time.March, 16, 9, 0, 0, 0, time.UTC) // следующий
	if got := NextWeekly(now); !got.Equal(want) {
		t.Fatalf("ожидали %v, получили %v", want, got)
	}
}

func TestNextWeeklyKeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		t.Skip("часовой пояс недоступен")
	}
	now := time.Date(2026, time.March, 4, 10, 0, 0, 0, loc)
	got := NextWeekly(now)
	if got.Location() != loc {
		t.Fatalf("слот должен остаться в поясе получателя, получили %v", got.Location())
	}
	if got.Hour() != 9 {
		t.Fatalf("слот должен быть в 09:00 локального времени, получили %d", got.Hour())
	}
}
