package fact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnapshot_HidesLaterFacts(t *testing.T) {
	asOf := time.Date(2025, time.March, 12, 12, 0, 0, 0, time.UTC)
	before := asOf.Add(-time.Hour)
	after := asOf.Add(time.Hour)

	tasks := []Task{
		{ID: "t1", AssigneeID: "u1", CreatorID: "u1", CreatedAt: before.Add(-time.Hour), Completed: true, CompletedAt: &before},
		{ID: "t2", AssigneeID: "u1", CreatorID: "u1", CreatedAt: before, Completed: true, CompletedAt: &after},
		{ID: "t3", AssigneeID: "u1", CreatorID: "u2", CreatedAt: after},
	}
	activities := []Activity{
		{ID: "a1", ItemID: "i1", UserID: "u1", Action: ActionCommentAdded, At: before},
		{ID: "a2", ItemID: "i1", UserID: "u1", Action: ActionCommentAdded, At: after},
	}

	s := NewSnapshot(asOf, nil, tasks, activities, []User{{ID: "u1"}})

	assert.Equal(t, time.UTC, s.Location())
	require.Len(t, s.AssignedTo("u1"), 2)
	require.Len(t, s.CompletedBy("u1"), 1)
	assert.Equal(t, "t1", s.CompletedBy("u1")[0].ID)
	assert.True(t, s.AssignedTo("u1")[1].IsOpen(), "completion after asOf reads as open")
	assert.Empty(t, s.CreatedBy("u2"))
	assert.Len(t, s.ItemActivities("i1"), 1)

	// The caller's slice is untouched.
	assert.True(t, tasks[1].Completed)
}

func TestNewSnapshot_OrdersCompletions(t *testing.T) {
	asOf := time.Date(2025, time.March, 12, 12, 0, 0, 0, time.UTC)
	t1 := asOf.Add(-3 * time.Hour)
	t2 := asOf.Add(-2 * time.Hour)

	tasks := []Task{
		{ID: "b", AssigneeID: "u1", CreatedAt: t1, Completed: true, CompletedAt: &t2},
		{ID: "a", AssigneeID: "u1", CreatedAt: t1, Completed: true, CompletedAt: &t2},
		{ID: "c", AssigneeID: "u1", CreatedAt: t1, Completed: true, CompletedAt: &t1},
	}
	s := NewSnapshot(asOf, time.UTC, tasks, nil, nil)

	var ids []string
	for _, task := range s.CompletedBy("u1") {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestTask_IsOnTime(t *testing.T) {
	due := time.Date(2025, time.March, 12, 12, 0, 0, 0, time.UTC)
	late := due.Add(time.Second)

	assert.True(t, (&Task{Completed: true, CompletedAt: &due, DueAt: &due}).IsOnTime())
	assert.False(t, (&Task{Completed: true, CompletedAt: &late, DueAt: &due}).IsOnTime())
	assert.False(t, (&Task{Completed: true, CompletedAt: &due}).IsOnTime())
	assert.False(t, (&Task{Completed: true, Discarded: true, CompletedAt: &due, DueAt: &due}).IsOnTime())
}
