package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FACT SOURCE
// Reads the host application's tables (see GetFactSchemaMigrations for the
// expected columns). Every snapshot is loaded inside one read-only
// repeatable-read transaction, so all three queries see the same state.
// ══════════════════════════════════════════════════════════════════════════════

var _ fact.Source = (*FactSource)(nil)

// FactSource implements fact.Source over PostgreSQL.
type FactSource struct {
	conn    *Connection
	timeout time.Duration
	logger  *zap.Logger
}

// NewFactSource creates a fact source. Queries are bounded by the
// connection's QueryTimeout.
func NewFactSource(conn *Connection, log *zap.Logger) *FactSource {
	timeout := conn.QueryTimeout()
	if timeout <= 0 {
		timeout = DefaultConfig().QueryTimeout
	}
	return &FactSource{
		conn:    conn,
		timeout: timeout,
		logger:  logger.OrNop(log).With(logger.Component("fact_source")),
	}
}

// Snapshot loads tasks, activities and users touching q.UserIDs.
func (s *FactSource) Snapshot(ctx context.Context, q fact.SnapshotQuery) (*fact.Snapshot, error) {
	if q.OrganizationID == "" {
		return nil, shared.WrapError("facts", "Snapshot", shared.ErrInvalidInput, "organization is required", nil)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	var (
		tasks      []fact.Task
		activities []fact.Activity
		users      []fact.User
	)
	err := s.conn.WithTx(ctx, SnapshotTxOptions(), func(tx pgx.Tx) error {
		var err error
		if users, err = s.loadUsers(ctx, tx, q); err != nil {
			return err
		}
		if tasks, err = s.loadTasks(ctx, tx, q); err != nil {
			return err
		}
		activities, err = s.loadActivities(ctx, tx, q)
		return err
	})
	if err != nil {
		return nil, shared.FactSourceError("Snapshot", err)
	}

	s.logger.Debug("snapshot loaded",
		logger.OrganizationID(q.OrganizationID),
		zap.Int("users", len(users)),
		zap.Int("tasks", len(tasks)),
		zap.Int("activities", len(activities)),
		logger.Latency(time.Since(start)),
	)
	return fact.NewSnapshot(q.AsOf, q.Location, tasks, activities, users), nil
}

// Members returns the organization's users, or one workspace's.
func (s *FactSource) Members(ctx context.Context, organizationID, workspaceID string) ([]fact.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.conn.Query(ctx, userSelect+`
		WHERE u.organization_id = $1
		  AND ($2::text = '' OR EXISTS (
		      SELECT 1 FROM workspace_members m
		      WHERE m.user_id = u.id AND m.workspace_id = $2::text))
		GROUP BY u.id
		ORDER BY u.id`, organizationID, workspaceID)
	if err != nil {
		return nil, shared.FactSourceError("Members", err)
	}
	users, err := scanUsers(rows)
	if err != nil {
		return nil, shared.FactSourceError("Members", err)
	}
	return users, nil
}

// Organizations lists organizations that have at least one user.
func (s *FactSource) Organizations(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.conn.Query(ctx, `SELECT DISTINCT organization_id FROM users ORDER BY organization_id`)
	if err != nil {
		return nil, shared.FactSourceError("Organizations", err)
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, shared.FactSourceError("Organizations", err)
		}
		orgs = append(orgs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.FactSourceError("Organizations", err)
	}
	return orgs, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SET-BASED QUERIES
// An empty user list means the whole organization: cardinality($2) = 0.
// ══════════════════════════════════════════════════════════════════════════════

const userSelect = `
	SELECT u.id, u.organization_id, u.created_at, u.visibility,
	       COALESCE(array_agg(wm.workspace_id ORDER BY wm.workspace_id)
	                FILTER (WHERE wm.workspace_id IS NOT NULL), '{}')
	FROM users u
	LEFT JOIN workspace_members wm ON wm.user_id = u.id`

func (s *FactSource) loadUsers(ctx context.Context, tx pgx.Tx, q fact.SnapshotQuery) ([]fact.User, error) {
	rows, err := tx.Query(ctx, userSelect+`
		WHERE u.organization_id = $1
		  AND (cardinality($2::text[]) = 0 OR u.id = ANY($2))
		GROUP BY u.id`, q.OrganizationID, userIDs(q))
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return scanUsers(rows)
}

// loadTasks returns tasks assigned to or created by the users. Tasks created
// after AsOf are filtered again by fact.NewSnapshot; the bound here only
// trims the transfer.
func (s *FactSource) loadTasks(ctx context.Context, tx pgx.Tx, q fact.SnapshotQuery) ([]fact.Task, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, organization_id, workspace_id, item_id, COALESCE(assignee_id, ''), creator_id,
		       priority, estimated_effort, actual_effort,
		       start_at, due_at, created_at, completed_at, completed, discarded
		FROM tasks
		WHERE organization_id = $1
		  AND created_at <= $3
		  AND (cardinality($2::text[]) = 0 OR assignee_id = ANY($2) OR creator_id = ANY($2))`,
		q.OrganizationID, userIDs(q), q.AsOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	var tasks []fact.Task
	for rows.Next() {
		var (
			t        fact.Task
			priority string
		)
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.WorkspaceID, &t.ItemID, &t.AssigneeID, &t.CreatorID,
			&priority, &t.EstimatedEffort, &t.ActualEffort,
			&t.StartAt, &t.DueAt, &t.CreatedAt, &t.CompletedAt, &t.Completed, &t.Discarded); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Priority = fact.Priority(priority)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

// loadActivities returns activities performed by the users plus the full
// history of items assigned to them, which relational predicates inspect.
func (s *FactSource) loadActivities(ctx context.Context, tx pgx.Tx, q fact.SnapshotQuery) ([]fact.Activity, error) {
	rows, err := tx.Query(ctx, `
		SELECT a.id, a.organization_id, a.workspace_id, a.item_id, a.user_id, a.action, a.occurred_at
		FROM item_activities a
		WHERE a.organization_id = $1
		  AND a.occurred_at <= $3
		  AND (cardinality($2::text[]) = 0
		       OR a.user_id = ANY($2)
		       OR a.item_id IN (
		           SELECT t.item_id FROM tasks t
		           WHERE t.organization_id = $1 AND t.assignee_id = ANY($2)))`,
		q.OrganizationID, userIDs(q), q.AsOf.UTC())
	if err != nil {
		return nil, fmt.Errorf("load activities: %w", err)
	}
	defer rows.Close()

	var activities []fact.Activity
	for rows.Next() {
		var (
			a      fact.Activity
			action string
		)
		if err := rows.Scan(&a.ID, &a.OrganizationID, &a.WorkspaceID, &a.ItemID, &a.UserID, &action, &a.At); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Action = fact.ActionType(action)
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}

func scanUsers(rows pgx.Rows) ([]fact.User, error) {
	defer rows.Close()

	var users []fact.User
	for rows.Next() {
		var (
			u          fact.User
			visibility string
		)
		if err := rows.Scan(&u.ID, &u.OrganizationID, &u.CreatedAt, &visibility, &u.WorkspaceIDs); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Visibility = fact.Visibility(visibility)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func userIDs(q fact.SnapshotQuery) []string {
	if q.UserIDs == nil {
		return []string{}
	}
	return q.UserIDs
}
