package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

var _ achievement.Ledger = (*LedgerRepository)(nil)

// LedgerRepository implements achievement.Ledger on user_achievements.
// Uniqueness of (user_id, code) is enforced by the table constraint.
type LedgerRepository struct {
	db Querier
}

// NewLedgerRepository creates a ledger over a pool, connection or transaction.
func NewLedgerRepository(db Querier) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create inserts the record; a conflicting insert is absorbed.
func (r *LedgerRepository) Create(ctx context.Context, userID string, code achievement.Code, earnedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_achievements (user_id, code, earned_at, notified_at)
		VALUES ($1, $2, $3, NULL)
		ON CONFLICT (user_id, code) DO NOTHING`,
		userID, string(code), earnedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert achievement %s for %s: %w", code, userID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkNotified moves notified_at from NULL to at exactly once.
func (r *LedgerRepository) MarkNotified(ctx context.Context, userID string, code achievement.Code, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_achievements SET notified_at = $3
		WHERE user_id = $1 AND code = $2 AND notified_at IS NULL`,
		userID, string(code), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark notified: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_achievements WHERE user_id = $1 AND code = $2)`,
		userID, string(code),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up achievement: %w", err)
	}
	if !exists {
		return shared.ErrRecordNotFound
	}
	return nil
}

// MarkAllNotified marks every unnotified record of the user.
func (r *LedgerRepository) MarkAllNotified(ctx context.Context, userID string, at time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE user_achievements SET notified_at = $2
		WHERE user_id = $1 AND notified_at IS NULL`,
		userID, at.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all notified: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListByUser returns the user's records ordered by earned_at.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID string) ([]achievement.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, code, earned_at, notified_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY earned_at, code`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}
	return scanRecords(rows)
}

// ListUnnotified returns records still awaiting delivery.
func (r *LedgerRepository) ListUnnotified(ctx context.Context, userID string) ([]achievement.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, code, earned_at, notified_at
		FROM user_achievements
		WHERE user_id = $1 AND notified_at IS NULL
		ORDER BY earned_at, code`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unnotified achievements: %w", err)
	}
	return scanRecords(rows)
}

// ListByUsers returns the records of a user set in one round trip.
func (r *LedgerRepository) ListByUsers(ctx context.Context, userIDs []string) ([]achievement.Record, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT user_id, code, earned_at, notified_at
		FROM user_achievements
		WHERE user_id = ANY($1)
		ORDER BY user_id, earned_at, code`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements by users: %w", err)
	}
	return scanRecords(rows)
}

// EarnedCodes returns the earned codes of a user set in one round trip.
func (r *LedgerRepository) EarnedCodes(ctx context.Context, userIDs []string) (achievement.EarnedSet, error) {
	set := make(achievement.EarnedSet, len(userIDs))
	if len(userIDs) == 0 {
		return set, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT user_id, code FROM user_achievements WHERE user_id = ANY($1)`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load earned codes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID, code string
		if err := rows.Scan(&userID, &code); err != nil {
			return nil, fmt.Errorf("failed to scan earned code: %w", err)
		}
		set.Add(userID, achievement.Code(code))
	}
	return set, rows.Err()
}

func scanRecords(rows pgx.Rows) ([]achievement.Record, error) {
	defer rows.Close()

	var records []achievement.Record
	for rows.Next() {
		var (
			rec  achievement.Record
			code string
		)
		if err := rows.Scan(&rec.UserID, &code, &rec.EarnedAt, &rec.NotifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		rec.Code = achievement.Code(code)
		rec.EarnedAt = rec.EarnedAt.UTC()
		if rec.NotifiedAt != nil {
			at := rec.NotifiedAt.UTC()
			rec.NotifiedAt = &at
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}
	return records, nil
}
