package digest

import (
	"time"
)

// Window is a weekly reporting span plus the week before it, for
// trend comparison. All bounds are instants; PeriodEnd lands on a
// Sunday 00:00 in the account's timezone.
type Window struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	PrevStart   time.Time
	PrevEnd     time.Time
}

// ComputeWeekWindow anchors the window at the most recent Sunday 00:00
// local to loc (today's, if now is a Sunday) and offsets by exact 168
// hour spans. The anchor follows wall-clock local time across DST
// changes; the spans stay exactly a week of elapsed time so aggregates
// over adjacent windows never overlap or gap.
func ComputeWeekWindow(loc *time.Location, now time.Time) Window {
	local := now.In(loc)
	daysBack := int(local.Weekday()) // Sunday == 0
	anchor := time.Date(local.Year(), local.Month(), local.Day()-daysBack, 0, 0, 0, 0, loc)

	const week = 168 * time.Hour
	return Window{
		PeriodEnd:   anchor,
		PeriodStart: anchor.Add(-week),
		PrevEnd:     anchor.Add(-week),
		PrevStart:   anchor.Add(-2 * week),
	}
}

// digestHour is the local hour on Sunday when digests go out.
const digestHour = 9

// IsDigestTime reports whether now falls in the weekly digest slot,
// Sunday 09:00-09:59 local, whatever UTC offset that currently is.
func IsDigestTime(loc *time.Location, now time.Time) bool {
	local := now.In(loc)
	return local.Weekday() == time.Sunday && local.Hour() == digestHour
}
