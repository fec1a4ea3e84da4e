package predicate

import (
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// Both streak shapes score the most recent unbroken run. A break resets the
// count to zero; an older, longer run does not count.
// ══════════════════════════════════════════════════════════════════════════════

// DayStreak achieves when the most recent run of consecutive local calendar
// days with at least one completion is at least days long.
func DayStreak(days int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		run := lastDayRun(view.CompletedBy(userID), view.Location())
		return atLeast(capAt(run, days), days), nil
	}
}

// lastDayRun expects completions ordered by completion time.
func lastDayRun(completed []fact.Task, loc *time.Location) int {
	run := 0
	var prev timeutil.Day
	for i, t := range completed {
		day := timeutil.DayOf(*t.CompletedAt, loc)
		switch {
		case i == 0:
			run = 1
		case day == prev:
			continue
		case timeutil.IsConsecutive(prev, day):
			run++
		default:
			run = 1
		}
		prev = day
	}
	return run
}

// OnTimeStreak achieves when the most recent run of on-time completions,
// ordered by completion time, is at least n long. A late completion breaks the
// run. Completions of tasks without a due date are not outcomes and neither
// extend nor break it.
func OnTimeStreak(n int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		run := 0
		for _, t := range view.CompletedBy(userID) {
			if t.DueAt == nil {
				continue
			}
			if t.IsOnTime() {
				run++
			} else {
				run = 0
			}
		}
		return atLeast(capAt(run, n), n), nil
	}
}

// CleanRunAfterReopen achieves when, after the user's most recent completion
// of a reopened item, at least n further completions followed with no reopen
// on their items. A user who never had a reopened item does not qualify.
func CleanRunAfterReopen(n int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		completed := view.CompletedBy(userID)

		last := -1
		for i, t := range completed {
			if hasAction(view.ItemActivities(t.ItemID), fact.ActionTaskReopened) {
				last = i
			}
		}
		if last < 0 {
			return atLeast(0, n), nil
		}
		run := len(completed) - last - 1
		return atLeast(capAt(run, n), n), nil
	}
}
