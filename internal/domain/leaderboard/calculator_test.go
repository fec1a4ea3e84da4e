package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
)

var asOf = time.Date(2025, time.March, 12, 18, 0, 0, 0, time.UTC)

func members(ids ...string) []fact.User {
	users := make([]fact.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, fact.User{ID: id, OrganizationID: "org-1", Visibility: fact.VisibilityPublic})
	}
	return users
}

func rec(userID string, code achievement.Code, ago time.Duration) achievement.Record {
	return achievement.Record{UserID: userID, Code: code, EarnedAt: asOf.Add(-ago)}
}

func userIDs(entries []Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	return ids
}

func defaultInput() Input {
	return Input{
		Members: members("alice", "bob", "carol", "dave"),
		Records: []achievement.Record{
			// alice: hard + easy = 4
			rec("alice", achievement.CodeCenturion, 48*time.Hour),
			rec("alice", achievement.CodeFirstStep, 40*24*time.Hour),
			// bob: 4 easy = 4, reached later than alice
			rec("bob", achievement.CodeFirstStep, 3*time.Hour),
			rec("bob", achievement.CodeEarlyBird, 2*time.Hour),
			rec("bob", achievement.CodeNightOwl, 1*time.Hour),
			rec("bob", achievement.CodeDelegator, 30*time.Minute),
			// carol: medium = 2
			rec("carol", achievement.CodeHalfCentury, 10*time.Hour),
		},
		Definitions: achievement.NewDefinitionSet(achievement.DefaultCatalog()),
		AsOf:        asOf,
	}
}

func TestCalculator_Difficulty(t *testing.T) {
	in := defaultInput()
	r, err := NewCalculator(30*24*time.Hour).ComputeKind(KindDifficulty, in)
	require.NoError(t, err)

	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, userIDs(r.Entries))
	assert.Equal(t, 4.0, r.Entries[0].Score)
	assert.Equal(t, 4.0, r.Entries[1].Score)
	assert.Equal(t, 0.0, r.Entries[3].Score)
	for i, e := range r.Entries {
		assert.Equal(t, Rank(i+1), e.Rank)
	}
}

func TestCalculator_Count(t *testing.T) {
	r, err := NewCalculator(30*24*time.Hour).ComputeKind(KindCount, defaultInput())
	require.NoError(t, err)

	assert.Equal(t, []string{"bob", "alice", "carol", "dave"}, userIDs(r.Entries))
	assert.Equal(t, 4, r.Entries[0].Earned)
}

func TestCalculator_GrowthRateWindow(t *testing.T) {
	r, err := NewCalculator(30*24*time.Hour).ComputeKind(KindGrowthRate, defaultInput())
	require.NoError(t, err)

	alice := r.GetByID("alice")
	require.NotNil(t, alice)
	assert.Equal(t, 1, alice.Earned, "record older than the window is ignored")
	assert.InDelta(t, 1.0/30, alice.Score, 1e-6)

	bob := r.GetByID("bob")
	require.NotNil(t, bob)
	assert.InDelta(t, 4.0/30, bob.Score, 1e-6)
	assert.Equal(t, Rank(1), bob.Rank)
}

func TestCalculator_RejectsEmptyWindow(t *testing.T) {
	_, err := NewCalculator(0).ComputeKind(KindGrowthRate, defaultInput())
	assert.Error(t, err)

	_, err = NewCalculator(0).ComputeKind(KindCount, defaultInput())
	assert.NoError(t, err)
}

func TestCalculator_ExcludesPrivateUsers(t *testing.T) {
	in := defaultInput()
	in.Members[0].Visibility = fact.VisibilityPrivate

	all, err := NewCalculator(30 * 24 * time.Hour).Compute(in)
	require.NoError(t, err)
	require.Len(t, all, 3)

	for kind, r := range all {
		assert.Nil(t, r.GetByID("alice"), "kind %s", kind)
		assert.Equal(t, 3, r.Count())
	}
}

func TestCalculator_IgnoresFutureAndForeignRecords(t *testing.T) {
	in := defaultInput()
	in.Records = append(in.Records,
		achievement.Record{UserID: "carol", Code: achievement.CodeCenturion, EarnedAt: asOf.Add(time.Hour)},
		rec("mallory", achievement.CodeCenturion, time.Hour),
	)

	r, err := NewCalculator(30*24*time.Hour).ComputeKind(KindDifficulty, in)
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.GetByID("carol").Score)
	assert.Nil(t, r.GetByID("mallory"))
}

func TestCalculator_StableAcrossCalls(t *testing.T) {
	in := defaultInput()
	in.Members = members("zed", "amy", "kim", "bo")
	in.Records = nil
	calc := NewCalculator(30 * 24 * time.Hour)

	first, err := calc.ComputeKind(KindCount, in)
	require.NoError(t, err)

	// Reverse member order; output must not change.
	for i, j := 0, len(in.Members)-1; i < j; i, j = i+1, j-1 {
		in.Members[i], in.Members[j] = in.Members[j], in.Members[i]
	}
	second, err := calc.ComputeKind(KindCount, in)
	require.NoError(t, err)

	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, []string{"amy", "bo", "kim", "zed"}, userIDs(first.Entries))
}

func TestRanking_BoardIncludesSelfOutsideTop(t *testing.T) {
	r, err := NewCalculator(30*24*time.Hour).ComputeKind(KindDifficulty, defaultInput())
	require.NoError(t, err)

	b := r.Board(2, "dave")
	assert.Equal(t, []string{"alice", "bob"}, userIDs(b.Top))
	require.NotNil(t, b.Self)
	assert.Equal(t, Rank(4), b.Self.Rank)
	assert.Equal(t, 4, b.Total)

	assert.Nil(t, r.Board(2, "nobody").Self)
	assert.Len(t, r.Board(10, "").Top, 4)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("growth_rate")
	require.NoError(t, err)
	assert.Equal(t, KindGrowthRate, k)

	_, err = ParseKind("xp")
	assert.Error(t, err)
}
