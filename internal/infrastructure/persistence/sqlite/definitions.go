package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

var _ achievement.DefinitionRepository = (*DefinitionRepository)(nil)

// DefinitionRepository stores achievement definitions in sqlite.
type DefinitionRepository struct {
	db *sql.DB
}

const definitionColumns = `code, name, description, localized, icon, category, difficulty, secret, active, sort_order`

// List returns all definitions by sort order, then code.
func (r *DefinitionRepository) List(ctx context.Context) ([]achievement.Definition, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+definitionColumns+` FROM achievement_definitions ORDER BY sort_order, code`)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []achievement.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definitions: %w", err)
	}
	return out, nil
}

// Get returns one definition.
func (r *DefinitionRepository) Get(ctx context.Context, code achievement.Code) (*achievement.Definition, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM achievement_definitions WHERE code = ?`, string(code))
	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrDefinitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// Save updates the mutable fields of an existing definition.
func (r *DefinitionRepository) Save(ctx context.Context, def achievement.Definition) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE achievement_definitions
SET category = ?, difficulty = ?, secret = ?, active = ?, sort_order = ?, updated_at = ?
WHERE code = ?`,
		string(def.Category), string(def.Difficulty), boolToInt(def.Secret), boolToInt(def.Active),
		def.SortOrder, toMillis(time.Now()), string(def.Code),
	)
	if err != nil {
		return fmt.Errorf("save definition %s: %w", def.Code, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrDefinitionNotFound
	}
	return nil
}

// Seed inserts definitions that are not stored yet.
func (r *DefinitionRepository) Seed(ctx context.Context, defs []achievement.Definition) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	now := toMillis(time.Now())
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return 0, err
		}
		localized, err := json.Marshal(def.Localized)
		if err != nil {
			return 0, fmt.Errorf("encode localized text for %s: %w", def.Code, err)
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO achievement_definitions (`+definitionColumns+`, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (code) DO NOTHING`,
			string(def.Code), def.Name, def.Description, string(localized), def.Icon,
			string(def.Category), string(def.Difficulty), boolToInt(def.Secret), boolToInt(def.Active),
			def.SortOrder, now,
		)
		if err != nil {
			return 0, fmt.Errorf("seed definition %s: %w", def.Code, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return inserted, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (achievement.Definition, error) {
	var (
		def                        achievement.Definition
		code, category, difficulty string
		localized                  string
		secret, active             int
	)
	if err := row.Scan(&code, &def.Name, &def.Description, &localized, &def.Icon,
		&category, &difficulty, &secret, &active, &def.SortOrder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, err
		}
		return def, fmt.Errorf("scan definition: %w", err)
	}
	def.Code = achievement.Code(code)
	def.Category = achievement.Category(category)
	def.Difficulty = achievement.Difficulty(difficulty)
	def.Secret = secret == 1
	def.Active = active == 1
	if localized != "" {
		if err := json.Unmarshal([]byte(localized), &def.Localized); err != nil {
			return def, fmt.Errorf("decode localized text for %s: %w", code, err)
		}
	}
	return def, nil
}
