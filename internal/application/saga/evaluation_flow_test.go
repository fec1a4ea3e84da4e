package saga

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/predicate"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/achievement-engine/internal/testkit/factgen"
)

var (
	almaty  = time.FixedZone("Asia/Almaty", 5*60*60)
	testNow = time.Date(2025, time.March, 12, 18, 0, 0, 0, almaty)
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	flow      *EvaluationFlow
	source    *factgen.Source
	ledger    achievement.Ledger
	defs      achievement.DefinitionRepository
	publisher *recordingPublisher
}

func newFixture(t *testing.T, b *factgen.Builder, registry *predicate.Registry, extra ...achievement.Definition) *fixture {
	t.Helper()

	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	defs := store.Definitions()
	_, err = defs.Seed(context.Background(), append(achievement.DefaultCatalog(), extra...))
	require.NoError(t, err)

	if registry == nil {
		registry = predicate.DefaultRegistry()
	}
	src := factgen.NewSource(b)
	pub := &recordingPublisher{}
	cfg := DefaultEvaluationFlowConfig()
	cfg.Concurrency = 4
	cfg.DefaultLocation = almaty

	return &fixture{
		flow:      NewEvaluationFlow(defs, store.Ledger(), src, registry, pub, nil, cfg),
		source:    src,
		ledger:    store.Ledger(),
		defs:      defs,
		publisher: pub,
	}
}

func orgScope() Scope {
	return Scope{OrganizationID: factgen.DefaultOrganization}
}

func userScope(userID string) Scope {
	return Scope{OrganizationID: factgen.DefaultOrganization, UserID: userID}
}

func awardedCodes(r *RunResult, userID string) []achievement.Code {
	var out []achievement.Code
	for _, rec := range r.Awarded {
		if rec.UserID == userID {
			out = append(out, rec.Code)
		}
	}
	return out
}

func TestEvaluateUser_AwardsOnce(t *testing.T) {
	b := factgen.New(1, testNow, almaty)
	b.Completed("u1", testNow.Add(-2*time.Hour))
	fx := newFixture(t, b, nil)
	ctx := context.Background()

	first, err := fx.flow.EvaluateUser(ctx, userScope("u1"), testNow, nil)
	require.NoError(t, err)
	assert.Contains(t, awardedCodes(first, "u1"), achievement.CodeFirstStep)
	assert.NotEmpty(t, first.RunID)
	assert.Equal(t, 1, first.Users)
	assert.Zero(t, first.Failed)

	second, err := fx.flow.EvaluateUser(ctx, userScope("u1"), testNow, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Earned)
	assert.Equal(t, first.Earned, second.Skipped)
	assert.NotEqual(t, first.RunID, second.RunID)

	records, err := fx.ledger.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, records, first.Earned)
	for _, rec := range records {
		assert.True(t, rec.EarnedAt.Equal(testNow))
		assert.Nil(t, rec.NotifiedAt)
	}

	events := fx.publisher.ofType(shared.EventAchievementEarned)
	assert.Len(t, events, first.Earned)
}

func TestEvaluateUser_OnlyRequestedCodes(t *testing.T) {
	b := factgen.New(1, testNow, almaty)
	b.Completed("u1", testNow.Add(-2*time.Hour))
	fx := newFixture(t, b, nil)

	res, err := fx.flow.EvaluateUser(context.Background(), userScope("u1"), testNow,
		[]achievement.Code{achievement.CodeConversationalist, achievement.CodeConversationalist})
	require.NoError(t, err)
	assert.Zero(t, res.Earned)
	assert.Equal(t, 1, res.Evaluated)

	records, err := fx.ledger.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, records, "first_step was not requested")
}

func TestEvaluateUser_SkipsInactiveDefinitions(t *testing.T) {
	b := factgen.New(1, testNow, almaty)
	b.Completed("u1", testNow.Add(-2*time.Hour))
	fx := newFixture(t, b, nil)
	ctx := context.Background()

	def, err := fx.defs.Get(ctx, achievement.CodeFirstStep)
	require.NoError(t, err)
	def.Active = false
	require.NoError(t, fx.defs.Save(ctx, *def))

	res, err := fx.flow.EvaluateUser(ctx, userScope("u1"), testNow, []achievement.Code{achievement.CodeFirstStep})
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
	assert.Zero(t, res.Earned)
}

func TestEvaluateUser_RequiresUser(t *testing.T) {
	fx := newFixture(t, factgen.New(1, testNow, almaty), nil)

	_, err := fx.flow.EvaluateUser(context.Background(), orgScope(), testNow, nil)
	var flowErr *EvaluationFlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, StepValidate, flowErr.Step)
}

func TestEvaluateOrganization_SweepIsIdempotent(t *testing.T) {
	b := factgen.New(7, testNow, almaty).
		RandomHistory("u1", 60, 40).
		RandomHistory("u2", 30, 20).
		User("u3")
	fx := newFixture(t, b, nil)
	ctx := context.Background()

	first, err := fx.flow.EvaluateOrganization(ctx, orgScope(), testNow, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Users)
	assert.Equal(t, int64(1), fx.source.SnapshotCalls(), "one snapshot per run")

	before, err := fx.ledger.ListByUsers(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Len(t, before, first.Earned)

	second, err := fx.flow.EvaluateOrganization(ctx, orgScope(), testNow, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Earned)

	after, err := fx.ledger.ListByUsers(ctx, []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, before, after)

	sweeps := fx.publisher.ofType(shared.EventSweepCompleted)
	assert.Len(t, sweeps, 2)
}

func TestEvaluateOrganization_ConcurrentRunsDoNotDuplicate(t *testing.T) {
	b := factgen.New(11, testNow, almaty)
	for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		b.RandomHistory(id, 40, 30)
	}
	fx := newFixture(t, b, nil)
	ctx := context.Background()

	const runs = 4
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		earned int
	)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := fx.flow.EvaluateOrganization(ctx, orgScope(), testNow, nil)
			assert.NoError(t, err)
			if res != nil {
				mu.Lock()
				earned += res.Earned
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	records, err := fx.ledger.ListByUsers(ctx, []string{"u1", "u2", "u3", "u4", "u5"})
	require.NoError(t, err)
	assert.Equal(t, len(records), earned, "every record was inserted by exactly one run")

	seen := make(map[string]bool)
	for _, rec := range records {
		key := rec.UserID + "/" + string(rec.Code)
		assert.False(t, seen[key], "duplicate %s", key)
		seen[key] = true
	}
}

func TestEvaluateOrganization_WorkspaceScope(t *testing.T) {
	b := factgen.New(1, testNow, almaty)
	b.User("u2", factgen.Workspaces("ws-2"))
	b.Completed("u1", testNow.Add(-time.Hour))
	b.Completed("u2", testNow.Add(-time.Hour), factgen.InWorkspace("ws-2"))
	fx := newFixture(t, b, nil)

	scope := orgScope()
	scope.WorkspaceID = "ws-2"
	res, err := fx.flow.EvaluateOrganization(context.Background(), scope, testNow, []achievement.Code{achievement.CodeFirstStep})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Users)
	assert.Equal(t, []achievement.Code{achievement.CodeFirstStep}, awardedCodes(res, "u2"))
	assert.Empty(t, awardedCodes(res, "u1"))
}

func TestEvaluateOrganization_FactSourceOutage(t *testing.T) {
	b := factgen.New(1, testNow, almaty)
	b.Completed("u1", testNow.Add(-time.Hour))
	fx := newFixture(t, b, nil)
	fx.source.FailWith(errors.New("connection refused"))

	res, err := fx.flow.EvaluateOrganization(context.Background(), orgScope(), testNow, nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, shared.ErrFactSourceUnavailable)
	assert.True(t, shared.IsRetryable(err))

	records, err := fx.ledger.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestEvaluateUser_IsolatesPredicateFailures(t *testing.T) {
	b := factgen.New(1, testNow, almaty)
	b.Completed("u1", testNow.Add(-time.Hour))

	registry := predicate.DefaultRegistry()
	registry.MustRegister(predicate.Entry{
		Code: "broken",
		Predicate: predicate.Func(func(string, time.Time, fact.View) (predicate.Result, error) {
			panic("index out of range")
		}),
	})
	broken := achievement.Definition{
		Code: "broken", Name: "Broken", Category: achievement.CategoryMilestone,
		Difficulty: achievement.DifficultyEasy, Active: true, SortOrder: 1000,
	}
	fx := newFixture(t, b, registry, broken)

	res, err := fx.flow.EvaluateUser(context.Background(), userScope("u1"), testNow, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, awardedCodes(res, "u1"), achievement.CodeFirstStep)
}

func TestEvaluateOrganization_CancelledBeforeStart(t *testing.T) {
	b := factgen.New(1, testNow, almaty)
	b.Completed("u1", testNow.Add(-time.Hour))
	fx := newFixture(t, b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.flow.EvaluateOrganization(ctx, orgScope(), testNow, nil)
	assert.Error(t, err)

	records, listErr := fx.ledger.ListByUser(context.Background(), "u1")
	require.NoError(t, listErr)
	assert.Empty(t, records)
}

func TestProgress_DoesNotWrite(t *testing.T) {
	b := factgen.New(1, testNow, almaty)
	for i := 0; i < 3; i++ {
		b.Completed("u1", testNow.Add(-time.Duration(i+1)*time.Hour), factgen.Priority(fact.PriorityHigh))
	}
	fx := newFixture(t, b, nil)

	progress, err := fx.flow.Progress(context.Background(), userScope("u1"), testNow)
	require.NoError(t, err)

	hunter, ok := progress[achievement.CodePriorityHunter]
	require.True(t, ok)
	assert.False(t, hunter.Achieved)
	assert.Equal(t, 3, hunter.Progress)
	assert.Equal(t, 5, hunter.Threshold)
	assert.True(t, progress[achievement.CodeFirstStep].Achieved)

	records, err := fx.ledger.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, records)
}
