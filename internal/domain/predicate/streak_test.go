package predicate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/testkit/factgen"
)

// completeSeries adds n completions one hour apart starting at start, each due
// one hour after completion, or one hour before when late reports true for i.
func completeSeries(b *factgen.Builder, userID string, start time.Time, n int, late func(i int) bool) time.Time {
	at := start
	for i := 0; i < n; i++ {
		due := at.Add(time.Hour)
		if late != nil && late(i) {
			due = at.Add(-time.Hour)
		}
		b.Completed(userID, at, factgen.Due(due))
		at = at.Add(time.Hour)
	}
	return at
}

func TestDeadlineMaster(t *testing.T) {
	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, almaty)

	t.Run("ten on time in a row", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		completeSeries(b, "u1", start, 10, nil)

		res := evaluate(t, OnTimeStreak(DeadlineMasterRun), b, "u1")
		assert.True(t, res.Achieved)
		assert.Equal(t, 10, res.Progress)
	})

	t.Run("ninth late breaks the run", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		completeSeries(b, "u1", start, 10, func(i int) bool { return i == 8 })

		res := evaluate(t, OnTimeStreak(DeadlineMasterRun), b, "u1")
		assert.False(t, res.Achieved)
		assert.Equal(t, 1, res.Progress)
	})

	t.Run("older on-time completions do not rescue a broken run", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		next := completeSeries(b, "u1", start.AddDate(0, 0, -5), 9, nil)
		assert.True(t, next.Before(start))
		completeSeries(b, "u1", start, 10, func(i int) bool { return i == 8 })

		res := evaluate(t, OnTimeStreak(DeadlineMasterRun), b, "u1")
		assert.False(t, res.Achieved)
	})

	t.Run("tasks without due date are neutral", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		next := completeSeries(b, "u1", start, 5, nil)
		b.Completed("u1", next)
		completeSeries(b, "u1", next.Add(time.Hour), 5, nil)

		assert.True(t, evaluate(t, OnTimeStreak(DeadlineMasterRun), b, "u1").Achieved)
	})

	t.Run("completion exactly at due date is on time", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		at := start
		for i := 0; i < DeadlineMasterRun; i++ {
			b.Completed("u1", at, factgen.Due(at))
			at = at.Add(time.Hour)
		}
		assert.True(t, evaluate(t, OnTimeStreak(DeadlineMasterRun), b, "u1").Achieved)
	})
}

func TestDayStreak(t *testing.T) {
	day := func(d, hour int) time.Time {
		return time.Date(2025, time.March, d, hour, 0, 0, 0, almaty)
	}

	t.Run("seven consecutive days", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		for d := 1; d <= 7; d++ {
			b.Completed("u1", day(d, 10))
		}
		res := evaluate(t, DayStreak(OnARollDays), b, "u1")
		assert.True(t, res.Achieved)
		assert.Equal(t, 7, res.Progress)
	})

	t.Run("several completions per day count once", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		for d := 1; d <= 6; d++ {
			b.Completed("u1", day(d, 10))
			b.Completed("u1", day(d, 15))
		}
		res := evaluate(t, DayStreak(OnARollDays), b, "u1")
		assert.False(t, res.Achieved)
		assert.Equal(t, 6, res.Progress)
	})

	t.Run("gap resets to the most recent run", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		for d := 1; d <= 8; d++ {
			b.Completed("u1", day(d, 10))
		}
		b.Completed("u1", day(10, 10))
		b.Completed("u1", day(11, 10))

		res := evaluate(t, DayStreak(OnARollDays), b, "u1")
		assert.False(t, res.Achieved)
		assert.Equal(t, 2, res.Progress)
	})

	t.Run("days follow the local calendar", func(t *testing.T) {
		// 23:30 and 00:30 local are consecutive days even though one hour apart.
		b := factgen.New(1, testNow, almaty)
		b.Completed("u1", day(1, 23).Add(30*time.Minute))
		b.Completed("u1", day(2, 0).Add(30*time.Minute))

		assert.Equal(t, 2, evaluate(t, DayStreak(OnARollDays), b, "u1").Progress)
	})
}

func TestCleanRunAfterReopen(t *testing.T) {
	start := time.Date(2025, time.March, 1, 9, 0, 0, 0, almaty)

	t.Run("never reopened", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		completeSeries(b, "u1", start, 8, nil)
		assert.False(t, evaluate(t, CleanRunAfterReopen(BounceBackRun), b, "u1").Achieved)
	})

	t.Run("five clean completions after a reopen", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		reopened := b.Completed("u1", start)
		b.Activity("reviewer", reopened.ItemID, fact.ActionTaskReopened, start.Add(-10*time.Minute))
		completeSeries(b, "u1", start.Add(time.Hour), 5, nil)

		res := evaluate(t, CleanRunAfterReopen(BounceBackRun), b, "u1")
		assert.True(t, res.Achieved)
		assert.Equal(t, 5, res.Progress)
	})

	t.Run("a later reopen restarts the run", func(t *testing.T) {
		b := factgen.New(1, testNow, almaty)
		first := b.Completed("u1", start)
		b.Activity("reviewer", first.ItemID, fact.ActionTaskReopened, start.Add(-10*time.Minute))
		next := completeSeries(b, "u1", start.Add(time.Hour), 4, nil)
		second := b.Completed("u1", next)
		b.Activity("reviewer", second.ItemID, fact.ActionTaskReopened, next.Add(-10*time.Minute))
		completeSeries(b, "u1", next.Add(time.Hour), 2, nil)

		res := evaluate(t, CleanRunAfterReopen(BounceBackRun), b, "u1")
		assert.False(t, res.Achieved)
		assert.Equal(t, 2, res.Progress)
	})
}
