package query

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-engine/internal/application/saga"
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/leaderboard"
	"github.com/alem-hub/achievement-engine/internal/domain/predicate"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/achievement-engine/internal/testkit/factgen"
)

var testNow = time.Date(2025, time.March, 12, 18, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "achievements.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.Definitions().Seed(context.Background(), achievement.DefaultCatalog())
	require.NoError(t, err)
	return store
}

func earn(t *testing.T, ledger achievement.Ledger, userID string, at time.Time, codes ...achievement.Code) {
	t.Helper()
	for _, code := range codes {
		_, err := ledger.Create(context.Background(), userID, code, at)
		require.NoError(t, err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTION
// ══════════════════════════════════════════════════════════════════════════════

type stubProgress struct {
	result map[achievement.Code]predicate.Result
	err    error
}

func (s stubProgress) Progress(context.Context, saga.Scope, time.Time) (map[achievement.Code]predicate.Result, error) {
	return s.result, s.err
}

func findItem(items []CollectionItemDTO, code achievement.Code) *CollectionItemDTO {
	for i := range items {
		if items[i].Code == string(code) {
			return &items[i]
		}
	}
	return nil
}

func TestGetCollection_MasksUnearnedSecrets(t *testing.T) {
	store := openStore(t)
	earn(t, store.Ledger(), "u1", testNow, achievement.CodeSecondChance, achievement.CodeFirstStep)

	progress := stubProgress{result: map[achievement.Code]predicate.Result{
		achievement.CodeMidnightStroke: {Achieved: false, Progress: 0, Threshold: 1},
		achievement.CodePatient:        {Achieved: false, Progress: 12, Threshold: 30},
		achievement.CodePriorityHunter: {Achieved: false, Progress: 4, Threshold: 5},
	}}
	h := NewGetCollectionHandler(store.Definitions(), store.Ledger(), progress, nil)

	res, err := h.Handle(context.Background(), GetCollectionQuery{
		UserID: "u1", OrganizationID: "org-1", IncludeProgress: true,
	})
	require.NoError(t, err)
	assert.Equal(t, len(achievement.DefaultCatalog()), res.TotalCount)
	assert.Equal(t, 2, res.EarnedCount)

	var masked int
	for _, item := range res.Items {
		if item.Secret && !item.Earned {
			masked++
			assert.Empty(t, item.Code)
			assert.Equal(t, "Secret achievement", item.Name)
			assert.Equal(t, SecretIcon, item.Icon)
			assert.Zero(t, item.Progress)
			assert.Zero(t, item.Threshold)
		}
	}
	assert.Equal(t, 2, masked, "midnight_stroke and patient stay hidden")

	revealed := findItem(res.Items, achievement.CodeSecondChance)
	require.NotNil(t, revealed, "earned secrets are revealed")
	assert.Equal(t, "Second Chance", revealed.Name)
	require.NotNil(t, revealed.EarnedAt)
	assert.False(t, revealed.Notified)

	hunter := findItem(res.Items, achievement.CodePriorityHunter)
	require.NotNil(t, hunter)
	assert.Equal(t, 4, hunter.Progress)
	assert.Equal(t, 5, hunter.Threshold)
}

func TestGetCollection_Localizes(t *testing.T) {
	store := openStore(t)
	h := NewGetCollectionHandler(store.Definitions(), store.Ledger(), nil, nil)

	res, err := h.Handle(context.Background(), GetCollectionQuery{UserID: "u1", Language: "ru-RU,ru;q=0.9,en;q=0.5"})
	require.NoError(t, err)
	assert.Equal(t, "ru", res.Language)
	assert.Equal(t, "Первый шаг", findItem(res.Items, achievement.CodeFirstStep).Name)

	for _, item := range res.Items {
		if item.Secret && !item.Earned {
			assert.Equal(t, "Секретное достижение", item.Name)
		}
	}

	res, err = h.Handle(context.Background(), GetCollectionQuery{UserID: "u1", Language: "fr-FR"})
	require.NoError(t, err)
	assert.Equal(t, "", res.Language)
	assert.Equal(t, "First Step", findItem(res.Items, achievement.CodeFirstStep).Name)
}

func TestGetCollection_HidesInactiveUnlessEarned(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	for _, code := range []achievement.Code{achievement.CodeVeteran, achievement.CodeNightOwl} {
		def, err := store.Definitions().Get(ctx, code)
		require.NoError(t, err)
		def.Active = false
		require.NoError(t, store.Definitions().Save(ctx, *def))
	}
	earn(t, store.Ledger(), "u1", testNow, achievement.CodeNightOwl)

	h := NewGetCollectionHandler(store.Definitions(), store.Ledger(), nil, nil)
	res, err := h.Handle(ctx, GetCollectionQuery{UserID: "u1"})
	require.NoError(t, err)

	assert.Nil(t, findItem(res.Items, achievement.CodeVeteran))
	assert.NotNil(t, findItem(res.Items, achievement.CodeNightOwl))
}

func TestGetCollection_ProgressFailureIsNotFatal(t *testing.T) {
	store := openStore(t)
	h := NewGetCollectionHandler(store.Definitions(), store.Ledger(),
		stubProgress{err: errors.New("facts down")}, nil)

	res, err := h.Handle(context.Background(), GetCollectionQuery{UserID: "u1", OrganizationID: "org-1", IncludeProgress: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Items)

	_, err = h.Handle(context.Background(), GetCollectionQuery{})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// UNNOTIFIED
// ══════════════════════════════════════════════════════════════════════════════

func TestGetUnnotified_Handle(t *testing.T) {
	store := openStore(t)
	ledger := store.Ledger()
	earn(t, ledger, "u1", testNow, achievement.CodeFirstStep)
	earn(t, ledger, "u1", testNow.Add(time.Minute), achievement.CodeMidnightStroke)
	require.NoError(t, ledger.MarkNotified(context.Background(), "u1", achievement.CodeFirstStep, testNow))

	h := NewGetUnnotifiedHandler(store.Definitions(), ledger)
	list, err := h.Handle(context.Background(), GetUnnotifiedQuery{UserID: "u1", Language: "ru"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, string(achievement.CodeMidnightStroke), list[0].Code)
	assert.NotEqual(t, "Midnight Stroke", list[0].Name, "localized to ru")

	list, err = h.Handle(context.Background(), GetUnnotifiedQuery{UserID: "u2"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

type memCache struct {
	mu    sync.Mutex
	fresh map[string]*leaderboard.Ranking
	last  map[string]*leaderboard.Ranking
}

func newMemCache() *memCache {
	return &memCache{fresh: map[string]*leaderboard.Ranking{}, last: map[string]*leaderboard.Ranking{}}
}

func cacheKey(s leaderboard.Scope, k leaderboard.Kind) string {
	return s.OrganizationID + "/" + s.WorkspaceID + "/" + string(k)
}

func (c *memCache) Get(_ context.Context, s leaderboard.Scope, k leaderboard.Kind) (*leaderboard.Ranking, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.fresh[cacheKey(s, k)]; ok {
		return r, nil
	}
	return nil, leaderboard.ErrCacheMiss
}

func (c *memCache) Set(_ context.Context, s leaderboard.Scope, r *leaderboard.Ranking, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fresh[cacheKey(s, r.Kind)] = r
	c.last[cacheKey(s, r.Kind)] = r
	return nil
}

func (c *memCache) GetLastKnown(_ context.Context, s leaderboard.Scope, k leaderboard.Kind) (*leaderboard.Ranking, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.last[cacheKey(s, k)]; ok {
		return r, nil
	}
	return nil, leaderboard.ErrCacheMiss
}

func (c *memCache) Invalidate(_ context.Context, s leaderboard.Scope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range leaderboard.AllKinds() {
		delete(c.fresh, cacheKey(s, k))
	}
	return nil
}

func newLeaderboardFixture(t *testing.T) (*GetLeaderboardHandler, *factgen.Source, *memCache) {
	t.Helper()
	store := openStore(t)
	b := factgen.New(1, testNow, time.UTC).
		User("alice").User("bob").User("carol").User("ghost", factgen.Private())

	ledger := store.Ledger()
	earn(t, ledger, "alice", testNow.Add(-2*time.Hour), achievement.CodeCenturion)
	earn(t, ledger, "bob", testNow.Add(-3*time.Hour), achievement.CodeFirstStep, achievement.CodeNightOwl)
	earn(t, ledger, "ghost", testNow.Add(-time.Hour), achievement.CodeCenturion, achievement.CodeUnstoppable)

	src := factgen.NewSource(b)
	cache := newMemCache()
	h := NewGetLeaderboardHandler(ledger, store.Definitions(), src,
		leaderboard.NewCalculator(30*24*time.Hour), cache, DefaultLeaderboardConfig(), nil)
	h.now = func() time.Time { return testNow }
	return h, src, cache
}

func TestGetLeaderboard_TopAndSelf(t *testing.T) {
	h, _, _ := newLeaderboardFixture(t)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{
		OrganizationID: factgen.DefaultOrganization, Kind: "difficulty", UserID: "carol", Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "alice", res.Entries[0].UserID)
	assert.Equal(t, 3.0, res.Entries[0].Score)
	assert.Equal(t, "bob", res.Entries[1].UserID)
	require.NotNil(t, res.Self)
	assert.Equal(t, 3, res.Self.Rank)
	assert.Equal(t, 3, res.TotalCount, "private users are excluded")
	assert.False(t, res.Stale)

	res, err = h.Handle(context.Background(), GetLeaderboardQuery{
		OrganizationID: factgen.DefaultOrganization, Kind: "count", UserID: "ghost",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Entries[0].UserID)
	assert.Nil(t, res.Self)
}

func TestGetLeaderboard_StableAcrossCalls(t *testing.T) {
	h, _, cache := newLeaderboardFixture(t)
	q := GetLeaderboardQuery{OrganizationID: factgen.DefaultOrganization, Kind: "growth_rate"}

	first, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background(), leaderboard.Scope{OrganizationID: q.OrganizationID}))
	second, err := h.Handle(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, first.Entries, second.Entries)
}

func TestGetLeaderboard_ServesLastKnownOnError(t *testing.T) {
	h, src, cache := newLeaderboardFixture(t)
	q := GetLeaderboardQuery{OrganizationID: factgen.DefaultOrganization, Kind: "count"}

	fresh, err := h.Handle(context.Background(), q)
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(context.Background(), leaderboard.Scope{OrganizationID: q.OrganizationID}))
	src.FailWith(errors.New("timeout"))

	stale, err := h.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, fresh.Entries, stale.Entries)

	// No copy at all: the error surfaces.
	q.WorkspaceID = "ws-9"
	_, err = h.Handle(context.Background(), q)
	assert.ErrorIs(t, err, shared.ErrRankingComputation)
}

func TestGetLeaderboardQuery_Validate(t *testing.T) {
	q := GetLeaderboardQuery{OrganizationID: "org", Kind: "count"}
	require.NoError(t, q.Validate())
	assert.Equal(t, 20, q.Limit)

	q.Limit = 500
	require.NoError(t, q.Validate())
	assert.Equal(t, 100, q.Limit)

	assert.Error(t, (&GetLeaderboardQuery{OrganizationID: "org", Kind: "xp"}).Validate())
	assert.Error(t, (&GetLeaderboardQuery{Kind: "count"}).Validate())
}
