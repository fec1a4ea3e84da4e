package predicate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/internal/testkit/factgen"
)

func TestDefaultRegistry_CoversCatalog(t *testing.T) {
	r := DefaultRegistry()

	catalog := achievement.DefaultCatalog()
	require.Len(t, r.Codes(), len(catalog))
	for _, def := range catalog {
		_, ok := r.Get(def.Code)
		assert.True(t, ok, "no predicate for %s", def.Code)
	}
}

func TestDefaultRegistry_Triggers(t *testing.T) {
	r := DefaultRegistry()

	comments := r.TriggeredBy(fact.ActionCommentAdded)
	assert.Equal(t, []achievement.Code{achievement.CodeConversationalist}, comments)

	completed := r.TriggeredBy(fact.ActionTaskCompleted)
	assert.Contains(t, completed, achievement.CodePriorityHunter)
	assert.Contains(t, completed, achievement.CodeDeadlineMaster)
	assert.NotContains(t, completed, achievement.CodeVeteran)
	assert.NotContains(t, completed, achievement.CodePatient)

	veteran, ok := r.Get(achievement.CodeVeteran)
	require.True(t, ok)
	assert.True(t, veteran.SweepOnly)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	e := Entry{Code: "dup", Predicate: CompletedCount(1)}

	require.NoError(t, r.Register(e))
	assert.Error(t, r.Register(e))
	assert.Error(t, r.Register(Entry{Code: "Bad Code", Predicate: CompletedCount(1)}))
	assert.Error(t, r.Register(Entry{Code: "nil_predicate"}))
	assert.Error(t, r.Register(Entry{Code: "mixed", Predicate: CompletedCount(1), SweepOnly: true, Triggers: onCompleted}))
}

func TestRegistry_EvaluateIsolatesFailures(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(Entry{Code: "panics", Predicate: Func(func(string, time.Time, fact.View) (Result, error) {
		panic("boom")
	})})
	r.MustRegister(Entry{Code: "fails", Predicate: Func(func(string, time.Time, fact.View) (Result, error) {
		return Result{}, errors.New("bad data")
	})})

	view := factgen.New(1, testNow, almaty).Snapshot(testNow)

	_, err := r.Evaluate("panics", "u1", testNow, view)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrPredicateEvaluation))

	_, err = r.Evaluate("fails", "u1", testNow, view)
	assert.True(t, errors.Is(err, shared.ErrPredicateEvaluation))

	_, err = r.Evaluate("missing", "u1", testNow, view)
	assert.True(t, shared.IsNotFound(err))
}

func TestDefaultRegistry_Deterministic(t *testing.T) {
	build := func() *fact.Snapshot {
		return factgen.New(42, testNow, almaty).
			RandomHistory("u1", 80, 60).
			Snapshot(testNow)
	}
	first, second := build(), build()

	r := DefaultRegistry()
	for _, code := range r.Codes() {
		a, errA := r.Evaluate(code, "u1", testNow, first)
		b, errB := r.Evaluate(code, "u1", testNow, second)
		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, a, b, "code %s", code)
	}
}
