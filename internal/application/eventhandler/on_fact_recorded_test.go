package eventhandler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-engine/internal/application/saga"
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/leaderboard"
	"github.com/alem-hub/achievement-engine/internal/domain/predicate"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

type evaluateCall struct {
	scope saga.Scope
	asOf  time.Time
	codes []achievement.Code
}

type fakeEvaluator struct {
	mu     sync.Mutex
	calls  []evaluateCall
	result *saga.RunResult
	err    error
}

func (f *fakeEvaluator) EvaluateUser(_ context.Context, scope saga.Scope, asOf time.Time, codes []achievement.Code) (*saga.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, evaluateCall{scope: scope, asOf: asOf, codes: codes})
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &saga.RunResult{RunID: "run-1"}, nil
}

type countingCache struct {
	leaderboard.RankingCache
	invalidated []leaderboard.Scope
}

func (c *countingCache) Invalidate(_ context.Context, scope leaderboard.Scope) error {
	c.invalidated = append(c.invalidated, scope)
	return nil
}

var at = time.Date(2025, time.March, 12, 13, 0, 0, 0, time.UTC)

func TestOnFactRecorded_EvaluatesTriggeredSubset(t *testing.T) {
	eval := &fakeEvaluator{}
	h := NewOnFactRecordedHandler(eval, predicate.DefaultRegistry(), nil, nil, DefaultFactRecordedConfig())

	event := shared.NewFactRecordedEvent("org-1", "ws-1", "item-1", "u1", string(fact.ActionCommentAdded), at)
	event.Timezone = "Asia/Almaty"
	require.NoError(t, h.Handle(event))

	require.Len(t, eval.calls, 1)
	call := eval.calls[0]
	assert.Equal(t, []achievement.Code{achievement.CodeConversationalist}, call.codes)
	assert.Equal(t, "u1", call.scope.UserID)
	assert.Equal(t, "org-1", call.scope.OrganizationID)
	assert.Equal(t, "Asia/Almaty", call.scope.Location.String())
	assert.True(t, call.asOf.Equal(at))
}

func TestOnFactRecorded_IgnoresUntriggeredActions(t *testing.T) {
	eval := &fakeEvaluator{}
	h := NewOnFactRecordedHandler(eval, predicate.DefaultRegistry(), nil, nil, DefaultFactRecordedConfig())

	event := shared.NewFactRecordedEvent("org-1", "ws-1", "item-1", "u1", "viewed", at)
	require.NoError(t, h.Handle(event))
	assert.Empty(t, eval.calls)
}

func TestOnFactRecorded_FallsBackToDefaultZone(t *testing.T) {
	eval := &fakeEvaluator{}
	cfg := DefaultFactRecordedConfig()
	cfg.DefaultLocation = time.FixedZone("Asia/Almaty", 5*60*60)
	h := NewOnFactRecordedHandler(eval, predicate.DefaultRegistry(), nil, nil, cfg)

	event := shared.NewFactRecordedEvent("org-1", "ws-1", "item-1", "u1", string(fact.ActionTaskCompleted), at)
	event.Timezone = "Mars/Olympus"
	require.NoError(t, h.Handle(event))

	require.Len(t, eval.calls, 1)
	assert.Equal(t, cfg.DefaultLocation, eval.calls[0].scope.Location)
}

func TestOnFactRecorded_DropsMalformedEvents(t *testing.T) {
	eval := &fakeEvaluator{}
	h := NewOnFactRecordedHandler(eval, predicate.DefaultRegistry(), nil, nil, DefaultFactRecordedConfig())

	event := shared.NewFactRecordedEvent("", "", "", "u1", string(fact.ActionTaskCompleted), at)
	assert.NoError(t, h.Handle(event))

	other := shared.NewSweepCompletedEvent("org-1", 1, 0, 0, at)
	assert.NoError(t, h.Handle(other))
	assert.Empty(t, eval.calls)
}

func TestOnFactRecorded_InvalidatesRankingsWhenEarned(t *testing.T) {
	eval := &fakeEvaluator{result: &saga.RunResult{RunID: "run-2", Earned: 2}}
	cache := &countingCache{}
	h := NewOnFactRecordedHandler(eval, predicate.DefaultRegistry(), cache, nil, DefaultFactRecordedConfig())

	event := shared.NewFactRecordedEvent("org-1", "ws-1", "item-1", "u1", string(fact.ActionTaskCompleted), at)
	require.NoError(t, h.Handle(event))
	assert.Equal(t, []leaderboard.Scope{{OrganizationID: "org-1"}}, cache.invalidated)
}

func TestOnFactRecorded_SurfacesFactSourceOutage(t *testing.T) {
	eval := &fakeEvaluator{err: shared.FactSourceError("Snapshot", errors.New("refused"))}
	h := NewOnFactRecordedHandler(eval, predicate.DefaultRegistry(), nil, nil, DefaultFactRecordedConfig())

	event := shared.NewFactRecordedEvent("org-1", "ws-1", "item-1", "u1", string(fact.ActionTaskCompleted), at)
	assert.ErrorIs(t, h.Handle(event), shared.ErrFactSourceUnavailable)

	eval.err = errors.New("ledger down")
	assert.NoError(t, h.Handle(event))
}
