package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

var now = time.Date(2025, time.March, 12, 18, 0, 0, 0, time.UTC)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "achievements.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "  ", nil)
	assert.Error(t, err)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "achievements.db")
	first, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestLedger_CreateSkipsDuplicates(t *testing.T) {
	t.Parallel()

	ledger := openTempStore(t).Ledger()
	ctx := context.Background()

	inserted, err := ledger.Create(ctx, "u1", achievement.CodeFirstStep, now)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = ledger.Create(ctx, "u1", achievement.CodeFirstStep, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, inserted)

	records, err := ledger.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].EarnedAt.Equal(now), "first earnedAt wins")
	assert.Nil(t, records[0].NotifiedAt)
}

func TestLedger_ConcurrentCreateIsUnique(t *testing.T) {
	t.Parallel()

	ledger := openTempStore(t).Ledger()
	ctx := context.Background()

	const workers = 16
	var (
		wg       sync.WaitGroup
		inserted atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := ledger.Create(ctx, "u1", achievement.CodeCenturion, now)
			assert.NoError(t, err)
			if ok {
				inserted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), inserted.Load())
	records, err := ledger.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLedger_NotificationLifecycle(t *testing.T) {
	t.Parallel()

	ledger := openTempStore(t).Ledger()
	ctx := context.Background()

	for i, code := range []achievement.Code{achievement.CodeFirstStep, achievement.CodeEarlyBird, achievement.CodeNightOwl} {
		_, err := ledger.Create(ctx, "u1", code, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	pending, err := ledger.ListUnnotified(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, achievement.CodeFirstStep, pending[0].Code)

	require.NoError(t, ledger.MarkNotified(ctx, "u1", achievement.CodeFirstStep, now))
	require.NoError(t, ledger.MarkNotified(ctx, "u1", achievement.CodeFirstStep, now.Add(time.Hour)))

	records, err := ledger.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, records[0].NotifiedAt)
	assert.True(t, records[0].NotifiedAt.Equal(now), "second mark is a no-op")

	err = ledger.MarkNotified(ctx, "u1", achievement.CodeCenturion, now)
	assert.ErrorIs(t, err, shared.ErrRecordNotFound)

	n, err := ledger.MarkAllNotified(ctx, "u1", now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ledger.MarkAllNotified(ctx, "u1", now)
	require.NoError(t, err)
	assert.Zero(t, n)

	pending, err = ledger.ListUnnotified(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLedger_SetQueries(t *testing.T) {
	t.Parallel()

	ledger := openTempStore(t).Ledger()
	ctx := context.Background()

	_, err := ledger.Create(ctx, "u1", achievement.CodeFirstStep, now)
	require.NoError(t, err)
	_, err = ledger.Create(ctx, "u2", achievement.CodeCenturion, now)
	require.NoError(t, err)
	_, err = ledger.Create(ctx, "u3", achievement.CodeVeteran, now)
	require.NoError(t, err)

	set, err := ledger.EarnedCodes(ctx, []string{"u1", "u2", "missing"})
	require.NoError(t, err)
	assert.True(t, set.Has("u1", achievement.CodeFirstStep))
	assert.True(t, set.Has("u2", achievement.CodeCenturion))
	assert.False(t, set.Has("u3", achievement.CodeVeteran))

	records, err := ledger.ListByUsers(ctx, []string{"u2", "u3"})
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = ledger.ListByUsers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDefinitions_SeedAndUpdate(t *testing.T) {
	t.Parallel()

	repo := openTempStore(t).Definitions()
	ctx := context.Background()
	catalog := achievement.DefaultCatalog()

	n, err := repo.Seed(ctx, catalog)
	require.NoError(t, err)
	assert.Equal(t, len(catalog), n)

	n, err = repo.Seed(ctx, catalog)
	require.NoError(t, err)
	assert.Zero(t, n, "seeding twice inserts nothing")

	def, err := repo.Get(ctx, achievement.CodeMidnightStroke)
	require.NoError(t, err)
	assert.True(t, def.Secret)
	assert.NotEmpty(t, def.Localized)

	def.Active = false
	def.Difficulty = achievement.DifficultyHard
	require.NoError(t, repo.Save(ctx, *def))

	n, err = repo.Seed(ctx, catalog)
	require.NoError(t, err)
	assert.Zero(t, n)

	def, err = repo.Get(ctx, achievement.CodeMidnightStroke)
	require.NoError(t, err)
	assert.False(t, def.Active, "seed keeps edits")
	assert.Equal(t, achievement.DifficultyHard, def.Difficulty)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, len(catalog))
	assert.Equal(t, catalog[0].Code, list[0].Code)

	_, err = repo.Get(ctx, "unknown")
	assert.ErrorIs(t, err, shared.ErrDefinitionNotFound)
	assert.ErrorIs(t, repo.Save(ctx, achievement.Definition{Code: "unknown"}), shared.ErrDefinitionNotFound)
}
