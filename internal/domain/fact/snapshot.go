package fact

import (
	"context"
	"sort"
	"time"

	"github.com/alem-hub/achievement-engine/pkg/timeutil"
)

// View is a read-only, indexed view over one snapshot. Every predicate of a
// run reads the same View, so all of them see the same facts.
// Returned slices are shared and must not be modified.
type View interface {
	// AsOf is the evaluation instant; no fact after it is visible.
	AsOf() time.Time

	// Location is the zone for local day/week/time-of-day boundaries.
	Location() *time.Location

	// User returns the user's attributes.
	User(userID string) (User, bool)

	// AssignedTo returns tasks assigned to the user ordered by CreatedAt.
	AssignedTo(userID string) []Task

	// CreatedBy returns tasks created by the user ordered by CreatedAt.
	CreatedBy(userID string) []Task

	// CompletedBy returns counted completions of tasks assigned to the user
	// ordered by CompletedAt, then task ID.
	CompletedBy(userID string) []Task

	// ActivitiesBy returns activities performed by the user ordered by time.
	ActivitiesBy(userID string) []Activity

	// ItemActivities returns the full history of an item ordered by time.
	ItemActivities(itemID string) []Activity
}

// SnapshotQuery selects the facts of one evaluation run.
type SnapshotQuery struct {
	OrganizationID string

	// UserIDs narrows the snapshot to facts touching these users. Empty
	// means every user of the organization.
	UserIDs []string

	AsOf     time.Time
	Location *time.Location
}

// Source is the read-only fact store. Implementations must bound every query
// with a timeout and report failures as shared.ErrFactSourceUnavailable.
type Source interface {
	// Snapshot loads one consistent set of facts with set-based queries.
	Snapshot(ctx context.Context, q SnapshotQuery) (*Snapshot, error)

	// Members returns users of an organization, or of one workspace when
	// workspaceID is not empty.
	Members(ctx context.Context, organizationID, workspaceID string) ([]User, error)

	// Organizations lists every organization that has users.
	Organizations(ctx context.Context) ([]string, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is the in-memory View built from raw facts.
type Snapshot struct {
	asOf     time.Time
	location *time.Location

	users      map[string]User
	userIDs    []string
	assigned   map[string][]Task
	created    map[string][]Task
	completed  map[string][]Task
	byUser     map[string][]Activity
	byItem     map[string][]Activity
	taskCount  int
	eventCount int
}

// NewSnapshot indexes facts as of asOf. Facts later than asOf are hidden: tasks
// created after it are dropped, completions after it read as still open and
// later activities are dropped.
func NewSnapshot(asOf time.Time, loc *time.Location, tasks []Task, activities []Activity, users []User) *Snapshot {
	s := &Snapshot{
		asOf:      asOf,
		location:  timeutil.OrUTC(loc),
		users:     make(map[string]User, len(users)),
		assigned:  make(map[string][]Task),
		created:   make(map[string][]Task),
		completed: make(map[string][]Task),
		byUser:    make(map[string][]Activity),
		byItem:    make(map[string][]Activity),
	}

	for _, u := range users {
		s.users[u.ID] = u
		s.userIDs = append(s.userIDs, u.ID)
	}
	sort.Strings(s.userIDs)

	for _, t := range tasks {
		if t.CreatedAt.After(asOf) {
			continue
		}
		if t.CompletedAt != nil && t.CompletedAt.After(asOf) {
			t.Completed = false
			t.CompletedAt = nil
		}
		s.taskCount++
		if t.AssigneeID != "" {
			s.assigned[t.AssigneeID] = append(s.assigned[t.AssigneeID], t)
			if t.IsDone() {
				s.completed[t.AssigneeID] = append(s.completed[t.AssigneeID], t)
			}
		}
		if t.CreatorID != "" {
			s.created[t.CreatorID] = append(s.created[t.CreatorID], t)
		}
	}

	for _, a := range activities {
		if a.At.After(asOf) {
			continue
		}
		s.eventCount++
		s.byUser[a.UserID] = append(s.byUser[a.UserID], a)
		if a.ItemID != "" {
			s.byItem[a.ItemID] = append(s.byItem[a.ItemID], a)
		}
	}

	for _, list := range s.assigned {
		sortByCreated(list)
	}
	for _, list := range s.created {
		sortByCreated(list)
	}
	for _, list := range s.completed {
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i].CompletedAt, list[j].CompletedAt
			if !a.Equal(*b) {
				return a.Before(*b)
			}
			return list[i].ID < list[j].ID
		})
	}
	for _, list := range s.byUser {
		sortActivities(list)
	}
	for _, list := range s.byItem {
		sortActivities(list)
	}
	return s
}

func sortByCreated(list []Task) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func sortActivities(list []Activity) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].At.Equal(list[j].At) {
			return list[i].At.Before(list[j].At)
		}
		return list[i].ID < list[j].ID
	})
}

// AsOf implements View.
func (s *Snapshot) AsOf() time.Time { return s.asOf }

// Location implements View.
func (s *Snapshot) Location() *time.Location { return s.location }

// User implements View.
func (s *Snapshot) User(userID string) (User, bool) {
	u, ok := s.users[userID]
	return u, ok
}

// AssignedTo implements View.
func (s *Snapshot) AssignedTo(userID string) []Task { return s.assigned[userID] }

// CreatedBy implements View.
func (s *Snapshot) CreatedBy(userID string) []Task { return s.created[userID] }

// CompletedBy implements View.
func (s *Snapshot) CompletedBy(userID string) []Task { return s.completed[userID] }

// ActivitiesBy implements View.
func (s *Snapshot) ActivitiesBy(userID string) []Activity { return s.byUser[userID] }

// ItemActivities implements View.
func (s *Snapshot) ItemActivities(itemID string) []Activity { return s.byItem[itemID] }

// UserIDs returns the snapshot's users in ascending order.
func (s *Snapshot) UserIDs() []string { return s.userIDs }

// Size returns the number of visible tasks and activities.
func (s *Snapshot) Size() (tasks, activities int) { return s.taskCount, s.eventCount }
