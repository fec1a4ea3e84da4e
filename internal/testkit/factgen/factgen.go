// Package factgen builds deterministic task/activity fixtures. The clock and the
// random source are injected so every generated history is reproducible.
package factgen

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
)

// DefaultOrganization and DefaultWorkspace scope fixtures unless overridden.
const (
	DefaultOrganization = "org-1"
	DefaultWorkspace    = "ws-1"
)

// Builder accumulates facts.
type Builder struct {
	org      string
	now      time.Time
	location *time.Location
	rng      *rand.Rand
	seq      int

	tasks      []fact.Task
	activities []fact.Activity
	users      map[string]*fact.User
	userOrder  []string
}

// New creates a builder. now anchors relative helpers; seed drives Random*.
func New(seed uint64, now time.Time, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{
		org:      DefaultOrganization,
		now:      now,
		location: loc,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		users:    make(map[string]*fact.User),
	}
}

// Now returns the injected clock.
func (b *Builder) Now() time.Time { return b.now }

// Location returns the fixture zone.
func (b *Builder) Location() *time.Location { return b.location }

// At returns a local wall-clock instant in the fixture zone.
func (b *Builder) At(year int, month time.Month, day, hour, minute, sec int) time.Time {
	return time.Date(year, month, day, hour, minute, sec, 0, b.location)
}

func (b *Builder) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s-%04d", prefix, b.seq)
}

// ══════════════════════════════════════════════════════════════════════════════
// USERS
// ══════════════════════════════════════════════════════════════════════════════

// UserOption customizes a user.
type UserOption func(*fact.User)

// Private hides the user from rankings.
func Private() UserOption {
	return func(u *fact.User) { u.Visibility = fact.VisibilityPrivate }
}

// JoinedAt sets the account creation time.
func JoinedAt(t time.Time) UserOption {
	return func(u *fact.User) { u.CreatedAt = t }
}

// Workspaces sets workspace memberships.
func Workspaces(ids ...string) UserOption {
	return func(u *fact.User) { u.WorkspaceIDs = ids }
}

// User registers a user; repeated calls update options.
func (b *Builder) User(id string, opts ...UserOption) *Builder {
	u, ok := b.users[id]
	if !ok {
		u = &fact.User{
			ID:             id,
			OrganizationID: b.org,
			WorkspaceIDs:   []string{DefaultWorkspace},
			CreatedAt:      b.now.AddDate(0, -1, 0),
			Visibility:     fact.VisibilityPublic,
		}
		b.users[id] = u
		b.userOrder = append(b.userOrder, id)
	}
	for _, opt := range opts {
		opt(u)
	}
	return b
}

// ══════════════════════════════════════════════════════════════════════════════
// TASKS
// ══════════════════════════════════════════════════════════════════════════════

// TaskOption customizes a task.
type TaskOption func(*fact.Task)

// Priority sets the task priority.
func Priority(p fact.Priority) TaskOption {
	return func(t *fact.Task) { t.Priority = p }
}

// Due sets the due date.
func Due(at time.Time) TaskOption {
	return func(t *fact.Task) { t.DueAt = &at }
}

// Created sets the creation time.
func Created(at time.Time) TaskOption {
	return func(t *fact.Task) { t.CreatedAt = at }
}

// CreatedByUser sets the creator.
func CreatedByUser(id string) TaskOption {
	return func(t *fact.Task) { t.CreatorID = id }
}

// Effort sets estimated and actual effort in hours.
func Effort(estimated, actual float64) TaskOption {
	return func(t *fact.Task) {
		t.EstimatedEffort = estimated
		t.ActualEffort = actual
	}
}

// InWorkspace moves the task into another workspace.
func InWorkspace(id string) TaskOption {
	return func(t *fact.Task) { t.WorkspaceID = id }
}

// Discarded marks the task discarded.
func Discarded() TaskOption {
	return func(t *fact.Task) { t.Discarded = true }
}

// Task adds a task assigned to userID. The task is created one day before now
// unless Created is given, and gets a Created activity by its creator.
func (b *Builder) Task(userID string, opts ...TaskOption) fact.Task {
	b.User(userID)
	id := b.nextID("task")
	t := fact.Task{
		ID:             id,
		OrganizationID: b.org,
		WorkspaceID:    DefaultWorkspace,
		ItemID:         "item-" + id,
		AssigneeID:     userID,
		CreatorID:      userID,
		Priority:       fact.PriorityMedium,
		CreatedAt:      b.now.Add(-24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&t)
	}
	b.tasks = append(b.tasks, t)
	b.Activity(t.CreatorID, t.ItemID, fact.ActionCreated, t.CreatedAt)
	return t
}

// Completed adds a task completed by userID at completedAt, with the matching
// TaskCompleted activity. Creation defaults to one hour before completion.
func (b *Builder) Completed(userID string, completedAt time.Time, opts ...TaskOption) fact.Task {
	opts = append([]TaskOption{Created(completedAt.Add(-time.Hour))}, opts...)
	opts = append(opts, func(t *fact.Task) {
		t.Completed = true
		t.CompletedAt = &completedAt
	})
	t := b.Task(userID, opts...)
	b.Activity(userID, t.ItemID, fact.ActionTaskCompleted, completedAt)
	return t
}

// Activity appends an activity on itemID.
func (b *Builder) Activity(userID, itemID string, action fact.ActionType, at time.Time) *Builder {
	b.activities = append(b.activities, fact.Activity{
		ID:             b.nextID("act"),
		OrganizationID: b.org,
		WorkspaceID:    DefaultWorkspace,
		ItemID:         itemID,
		UserID:         userID,
		Action:         action,
		At:             at,
	})
	return b
}

// ══════════════════════════════════════════════════════════════════════════════
// RANDOM HISTORY
// ══════════════════════════════════════════════════════════════════════════════

// RandomHistory adds n completions for userID spread over the last days days.
// Priority, due date, effort and a few comments/reopens vary with the seed.
func (b *Builder) RandomHistory(userID string, n, days int) *Builder {
	priorities := []fact.Priority{fact.PriorityLow, fact.PriorityMedium, fact.PriorityHigh}
	for i := 0; i < n; i++ {
		offset := time.Duration(b.rng.Int64N(int64(days)*24*int64(time.Hour))) + time.Minute
		completedAt := b.now.Add(-offset)

		opts := []TaskOption{Priority(priorities[b.rng.IntN(len(priorities))])}
		if b.rng.IntN(3) > 0 {
			slack := time.Duration(b.rng.IntN(96)-24) * time.Hour
			opts = append(opts, Due(completedAt.Add(slack)))
		}
		if b.rng.IntN(2) == 0 {
			estimated := float64(1 + b.rng.IntN(16))
			actual := estimated * (0.8 + b.rng.Float64()*0.4)
			opts = append(opts, Effort(estimated, actual))
		}

		t := b.Completed(userID, completedAt, opts...)
		if b.rng.IntN(4) == 0 {
			b.Activity(userID, t.ItemID, fact.ActionCommentAdded, completedAt.Add(-30*time.Minute))
		}
		if b.rng.IntN(10) == 0 {
			b.Activity(userID, t.ItemID, fact.ActionTaskReopened, completedAt.Add(-20*time.Minute))
		}
	}
	return b
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTPUT
// ══════════════════════════════════════════════════════════════════════════════

// Tasks returns the generated tasks.
func (b *Builder) Tasks() []fact.Task { return b.tasks }

// Activities returns the generated activities.
func (b *Builder) Activities() []fact.Activity { return b.activities }

// Users returns the generated users in registration order.
func (b *Builder) Users() []fact.User {
	out := make([]fact.User, 0, len(b.userOrder))
	for _, id := range b.userOrder {
		out = append(out, *b.users[id])
	}
	return out
}

// Snapshot indexes everything as of asOf.
func (b *Builder) Snapshot(asOf time.Time) *fact.Snapshot {
	return fact.NewSnapshot(asOf, b.location, b.tasks, b.activities, b.Users())
}
