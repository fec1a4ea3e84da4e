package predicate

import (
	"time"

	"github.com/alem-hub/achievement-engine/pkg/timeutil"
)

const minutesPerDay = 24 * 60

// ClockRange is a half-open local time-of-day range [Start, End) in minutes
// since midnight, with Start < End.
type ClockRange struct {
	Start int
	End   int
}

// Contains reports Start <= minute < End.
func (r ClockRange) Contains(minute int) bool {
	return minute >= r.Start && minute < r.End
}

// Window is a disjunction of clock ranges. A window that crosses midnight is
// stored as two ranges, [start, 24:00) and [00:00, end).
type Window []ClockRange

// Between builds the window [start, end) from hour/minute pairs.
func Between(startHour, startMinute, endHour, endMinute int) Window {
	start := startHour*60 + startMinute
	end := endHour*60 + endMinute

	if start < end {
		return Window{{Start: start, End: end}}
	}

	w := Window{{Start: start, End: minutesPerDay}}
	if end > 0 {
		w = append(w, ClockRange{Start: 0, End: end})
	}
	return w
}

// Contains reports whether t's local time of day in loc falls in any range.
func (w Window) Contains(t time.Time, loc *time.Location) bool {
	minute := timeutil.MinuteOfDay(t, loc)
	for _, r := range w {
		if r.Contains(minute) {
			return true
		}
	}
	return false
}
