package predicate

import (
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIME-WINDOW
// ══════════════════════════════════════════════════════════════════════════════

// CompletedInWindow counts completions whose local time of day falls in w.
func CompletedInWindow(w Window, threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		loc := view.Location()
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if w.Contains(*t.CompletedAt, loc) {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR
// ══════════════════════════════════════════════════════════════════════════════

// CompletedOnWeekend counts completions on a local Saturday or Sunday.
func CompletedOnWeekend(threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		loc := view.Location()
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if timeutil.IsWeekend(*t.CompletedAt, loc) {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// PerfectWeek looks at the user's tasks due inside the ISO week containing
// asOf (Monday 00:00 local, inclusive, to next Monday, exclusive). It achieves
// when there are at least minTasks of them and every one was completed inside
// the week and on time. Progress counts those that already qualify.
func PerfectWeek(minTasks int) Func {
	return func(userID string, asOf time.Time, view fact.View) (Result, error) {
		loc := view.Location()
		weekStart := timeutil.StartOfWeek(asOf, loc)
		weekEnd := timeutil.EndOfWeek(asOf, loc)
		inWeek := func(t time.Time) bool {
			return !t.Before(weekStart) && t.Before(weekEnd)
		}

		due, done := 0, 0
		for _, t := range view.AssignedTo(userID) {
			if t.Discarded || t.DueAt == nil || !inWeek(*t.DueAt) {
				continue
			}
			due++
			if t.IsOnTime() && inWeek(*t.CompletedAt) {
				done++
			}
		}

		threshold := minTasks
		if due > threshold {
			threshold = due
		}
		return Result{
			Achieved:  due >= minTasks && done == due,
			Progress:  done,
			Threshold: threshold,
		}, nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DURATION
// ══════════════════════════════════════════════════════════════════════════════

// CompletedWithin counts completions no later than d after creation.
func CompletedWithin(d time.Duration, threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if t.CompletedAt.Sub(t.CreatedAt) <= d {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// CompletedAheadOfDue counts completions at least lead before the due date.
func CompletedAheadOfDue(lead time.Duration, threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if t.DueAt != nil && t.DueAt.Sub(*t.CompletedAt) >= lead {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ELAPSED SINCE ANCHOR
// ══════════════════════════════════════════════════════════════════════════════

// AccountAge achieves when the account is at least days old at asOf.
func AccountAge(days int) Func {
	return func(userID string, asOf time.Time, view fact.View) (Result, error) {
		u, ok := view.User(userID)
		if !ok || u.CreatedAt.IsZero() {
			return atLeast(0, days), nil
		}
		return atLeast(capAt(timeutil.DaysSince(u.CreatedAt, asOf), days), days), nil
	}
}

// OpenTaskHeld achieves when an open task has been assigned to the user for at
// least days, measured from its creation.
func OpenTaskHeld(days int) Func {
	return func(userID string, asOf time.Time, view fact.View) (Result, error) {
		longest := 0
		for _, t := range view.AssignedTo(userID) {
			if !t.IsOpen() {
				continue
			}
			if held := timeutil.DaysSince(t.CreatedAt, asOf); held > longest {
				longest = held
			}
		}
		return atLeast(capAt(longest, days), days), nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ZERO-STATE
// ══════════════════════════════════════════════════════════════════════════════

// NoOpenTasks achieves when the user has assigned tasks and none of them is
// still open. Discarded tasks are ignored. A user with no tasks has nothing to
// clear and does not qualify.
func NoOpenTasks() Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		total, open := 0, 0
		for _, t := range view.AssignedTo(userID) {
			if t.Discarded {
				continue
			}
			total++
			if t.IsOpen() {
				open++
			}
		}
		return Result{
			Achieved:  total > 0 && open == 0,
			Progress:  total - open,
			Threshold: total,
		}, nil
	}
}

func capAt(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}
