package digest

import (
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%s): %v", name, err)
	}
	return loc
}

func TestComputeWeekWindow_SpansAreExactly168Hours(t *testing.T) {
	nyc := mustLoad(t, "America/New_York")

	dates := []time.Time{
		// Ordinary week.
		time.Date(2026, 1, 14, 15, 0, 0, 0, time.UTC),
		// Spring-forward (US DST starts 2026-03-08).
		time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC),
		// Fall-back (US DST ends 2026-11-01).
		time.Date(2026, 11, 4, 15, 0, 0, 0, time.UTC),
	}

	for _, now := range dates {
		w := ComputeWeekWindow(nyc, now)
		if got := w.PeriodEnd.Sub(w.PeriodStart); got != 168*time.Hour {
			t.Errorf("now=%s: period span = %s, want 168h", now, got)
		}
		if got := w.PeriodStart.Sub(w.PrevStart); got != 168*time.Hour {
			t.Errorf("now=%s: start offset = %s, want 168h", now, got)
		}
		if !w.PrevEnd.Equal(w.PeriodStart) {
			t.Errorf("now=%s: windows must be adjacent", now)
		}
	}
}

func TestComputeWeekWindow_AnchorsOnLocalSunday(t *testing.T) {
	nyc := mustLoad(t, "America/New_York")

	// Wednesday 2026-08-26 15:00 UTC; most recent NY Sunday is 08-23.
	w := ComputeWeekWindow(nyc, time.Date(2026, 8, 26, 15, 0, 0, 0, time.UTC))
	end := w.PeriodEnd.In(nyc)
	if end.Weekday() != time.Sunday || end.Hour() != 0 {
		t.Errorf("PeriodEnd = %s, want a local Sunday 00:00", end)
	}
	if end.Year() != 2026 || end.Month() != 8 || end.Day() != 23 {
		t.Errorf("PeriodEnd = %s, want 2026-08-23", end)
	}
}

func TestComputeWeekWindow_SundayAnchorsToday(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")

	// Sunday 10:00 Tokyo time anchors to this morning's midnight.
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, tokyo)
	w := ComputeWeekWindow(tokyo, now)
	end := w.PeriodEnd.In(tokyo)
	if end.Day() != 30 || end.Hour() != 0 {
		t.Errorf("PeriodEnd = %s, want 2026-08-30 00:00 local", end)
	}
}

func TestComputeWeekWindow_TimezonesDiffer(t *testing.T) {
	// 01:00 UTC Sunday: already Sunday in London, still Saturday in LA,
	// so the two anchors are a week apart at the date line of the week.
	now := time.Date(2026, 8, 30, 1, 0, 0, 0, time.UTC)
	london := ComputeWeekWindow(mustLoad(t, "Europe/London"), now)
	la := ComputeWeekWindow(mustLoad(t, "America/Los_Angeles"), now)

	if london.PeriodEnd.Equal(la.PeriodEnd) {
		t.Error("anchors must follow local calendars, not UTC")
	}
	if got := london.PeriodEnd.Sub(la.PeriodEnd); got < 6*24*time.Hour {
		t.Errorf("anchor gap = %s, want about a week", got)
	}
}

func TestIsDigestTime(t *testing.T) {
	nyc := mustLoad(t, "America/New_York")

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"Sunday 09:30 local", time.Date(2026, 8, 30, 9, 30, 0, 0, nyc), true},
		{"Sunday 08:59 local", time.Date(2026, 8, 30, 8, 59, 0, 0, nyc), false},
		{"Sunday 10:00 local", time.Date(2026, 8, 30, 10, 0, 0, 0, nyc), false},
		{"Monday 09:00 local", time.Date(2026, 8, 31, 9, 0, 0, 0, nyc), false},
		// 13:15 UTC on a Sunday is 09:15 in New York during DST.
		{"Sunday 13:15 UTC during DST", time.Date(2026, 8, 30, 13, 15, 0, 0, time.UTC), true},
		// Same UTC hour after fall-back is 08:15 local.
		{"Sunday 13:15 UTC after DST ends", time.Date(2026, 11, 8, 13, 15, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDigestTime(nyc, tt.now); got != tt.want {
				t.Errorf("IsDigestTime(%s) = %t, want %t", tt.now, got, tt.want)
			}
		})
	}
}
