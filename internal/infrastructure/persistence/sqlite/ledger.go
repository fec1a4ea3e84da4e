package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

const maxInList = 500

var _ achievement.Ledger = (*Ledger)(nil)

// Ledger is the sqlite achievement ledger.
type Ledger struct {
	db *sql.DB
}

// Create inserts the record unless (user, code) already exists.
func (l *Ledger) Create(ctx context.Context, userID string, code achievement.Code, earnedAt time.Time) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
INSERT INTO user_achievements (user_id, code, earned_at, notified_at)
VALUES (?, ?, ?, NULL)
ON CONFLICT (user_id, code) DO NOTHING`,
		userID, string(code), toMillis(earnedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert achievement %s for %s: %w", code, userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert achievement rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkNotified sets notified_at once; later calls are no-ops.
func (l *Ledger) MarkNotified(ctx context.Context, userID string, code achievement.Code, at time.Time) error {
	res, err := l.db.ExecContext(ctx, `
UPDATE user_achievements SET notified_at = ?
WHERE user_id = ? AND code = ? AND notified_at IS NULL`,
		toMillis(at), userID, string(code),
	)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var found int
	err = l.db.QueryRowContext(ctx,
		`SELECT 1 FROM user_achievements WHERE user_id = ? AND code = ?`, userID, string(code),
	).Scan(&found)
	if err == sql.ErrNoRows {
		return shared.ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("mark notified lookup: %w", err)
	}
	return nil
}

// MarkAllNotified transitions every unnotified record of the user.
func (l *Ledger) MarkAllNotified(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := l.db.ExecContext(ctx, `
UPDATE user_achievements SET notified_at = ?
WHERE user_id = ? AND notified_at IS NULL`,
		toMillis(at), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all notified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notified rows affected: %w", err)
	}
	return int(n), nil
}

// ListByUser returns the user's records by earned_at.
func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]achievement.Record, error) {
	return l.query(ctx, `
SELECT user_id, code, earned_at, notified_at FROM user_achievements
WHERE user_id = ? ORDER BY earned_at, code`, userID)
}

// ListUnnotified returns the user's pending records by earned_at.
func (l *Ledger) ListUnnotified(ctx context.Context, userID string) ([]achievement.Record, error) {
	return l.query(ctx, `
SELECT user_id, code, earned_at, notified_at FROM user_achievements
WHERE user_id = ? AND notified_at IS NULL ORDER BY earned_at, code`, userID)
}

// ListByUsers returns records for a set of users.
func (l *Ledger) ListByUsers(ctx context.Context, userIDs []string) ([]achievement.Record, error) {
	var out []achievement.Record
	for _, ids := range chunk(userIDs, maxInList) {
		records, err := l.query(ctx, `
SELECT user_id, code, earned_at, notified_at FROM user_achievements
WHERE user_id IN (`+placeholders(len(ids))+`) ORDER BY user_id, earned_at, code`, toArgs(ids)...)
		if err != nil {
			return nil, err
		}
		out = append(out, records...)
	}
	return out, nil
}

// EarnedCodes returns the earned set for a set of users.
func (l *Ledger) EarnedCodes(ctx context.Context, userIDs []string) (achievement.EarnedSet, error) {
	set := make(achievement.EarnedSet, len(userIDs))
	for _, ids := range chunk(userIDs, maxInList) {
		rows, err := l.db.QueryContext(ctx, `
SELECT user_id, code FROM user_achievements
WHERE user_id IN (`+placeholders(len(ids))+`)`, toArgs(ids)...)
		if err != nil {
			return nil, fmt.Errorf("query earned codes: %w", err)
		}
		for rows.Next() {
			var userID, code string
			if err := rows.Scan(&userID, &code); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan earned code: %w", err)
			}
			set.Add(userID, achievement.Code(code))
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate earned codes: %w", err)
		}
	}
	return set, nil
}

func (l *Ledger) query(ctx context.Context, q string, args ...any) ([]achievement.Record, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query achievements: %w", err)
	}
	defer rows.Close()

	var out []achievement.Record
	for rows.Next() {
		var (
			rec      achievement.Record
			code     string
			earned   int64
			notified sql.NullInt64
		)
		if err := rows.Scan(&rec.UserID, &code, &earned, &notified); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		rec.Code = achievement.Code(code)
		rec.EarnedAt = fromMillis(earned)
		if notified.Valid {
			at := fromMillis(notified.Int64)
			rec.NotifiedAt = &at
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate achievements: %w", err)
	}
	return out, nil
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
