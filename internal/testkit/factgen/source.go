package factgen

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

// Source serves a Builder's facts through fact.Source.
type Source struct {
	b *Builder

	mu  sync.Mutex
	err error

	snapshots atomic.Int64
}

var _ fact.Source = (*Source)(nil)

// NewSource wraps a builder.
func NewSource(b *Builder) *Source {
	return &Source{b: b}
}

// FailWith makes every call fail with err until cleared with nil.
func (s *Source) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Source) failure(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return shared.FactSourceError(op, s.err)
	}
	return nil
}

// SnapshotCalls returns how many snapshots were loaded.
func (s *Source) SnapshotCalls() int64 { return s.snapshots.Load() }

// Snapshot implements fact.Source.
func (s *Source) Snapshot(ctx context.Context, q fact.SnapshotQuery) (*fact.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.failure("Snapshot"); err != nil {
		return nil, err
	}
	s.snapshots.Add(1)

	users := s.b.Users()
	if len(q.UserIDs) > 0 {
		wanted := make(map[string]bool, len(q.UserIDs))
		for _, id := range q.UserIDs {
			wanted[id] = true
		}
		filtered := users[:0:0]
		for _, u := range users {
			if wanted[u.ID] {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}
	loc := q.Location
	if loc == nil {
		loc = s.b.location
	}
	return fact.NewSnapshot(q.AsOf, loc, s.b.tasks, s.b.activities, users), nil
}

// Members implements fact.Source.
func (s *Source) Members(ctx context.Context, organizationID, workspaceID string) ([]fact.User, error) {
	if err := s.failure("Members"); err != nil {
		return nil, err
	}
	var out []fact.User
	for _, u := range s.b.Users() {
		if u.OrganizationID != organizationID {
			continue
		}
		if workspaceID != "" && !u.InWorkspace(workspaceID) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// Organizations implements fact.Source.
func (s *Source) Organizations(ctx context.Context) ([]string, error) {
	if err := s.failure("Organizations"); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, u := range s.b.Users() {
		if !seen[u.OrganizationID] {
			seen[u.OrganizationID] = true
			out = append(out, u.OrganizationID)
		}
	}
	sort.Strings(out)
	return out, nil
}
