// Package period maps named reporting periods to concrete UTC time windows.
package period

import "time"

// Known period tokens.
const (
	All      = "all"
	Hour     = "hour"
	Day      = "day"
	Week     = "week"
	LastWeek = "last_week"
	Month    = "month"
)

// Window is a reporting time range. A zero Start means the window has no
// lower bound. The end is exclusive unless IncludeEnd is set.
type Window struct {
	Start      time.Time
	End        time.Time
	IncludeEnd bool
}

// Unbounded reports whether the window has no lower bound.
func (w Window) Unbounded() bool {
	return w.Start.IsZero()
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if !w.Unbounded() && t.Before(w.Start) {
		return false
	}
	if w.IncludeEnd {
		return !t.After(w.End)
	}
	return t.Before(w.End)
}

// Resolve returns the window for a period token, evaluated at now.
// Unknown tokens resolve to all-time rather than failing.
//
// day, week and month are calendar-to-date windows; week is anchored on
// Monday (ISO). last_week is the previous full calendar week and is the one
// window with an inclusive end: Monday 00:00:00 through Sunday
// 23:59:59.999999, so it can never leak into the current week.
func Resolve(token string, now time.Time) Window {
	now = now.UTC()

	switch token {
	case Hour:
		return Window{Start: now.Add(-time.Hour), End: now}
	case Day:
		return Window{Start: midnight(now), End: now}
	case Week:
		return Window{Start: mondayOf(now), End: now}
	case Month:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Window{Start: start, End: now}
	case LastWeek:
		thisMonday := mondayOf(now)
		return Window{
			Start:      thisMonday.AddDate(0, 0, -7),
			End:        thisMonday.Add(-time.Microsecond),
			IncludeEnd: true,
		}
	default:
		// all, and anything unrecognized
		return Window{End: now}
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// mondayOf returns midnight UTC of the Monday on or before t.
func mondayOf(t time.Time) time.Time {
	daysBack := (int(t.Weekday()) + 6) % 7
	return midnight(t).AddDate(0, 0, -daysBack)
}
