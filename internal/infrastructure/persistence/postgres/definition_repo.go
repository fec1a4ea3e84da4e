package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

var _ achievement.DefinitionRepository = (*DefinitionRepository)(nil)

// DefinitionRepository implements achievement.DefinitionRepository.
type DefinitionRepository struct {
	conn *Connection
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(conn *Connection) *DefinitionRepository {
	return &DefinitionRepository{conn: conn}
}

const definitionColumns = `code, name, description, localized, icon, category, difficulty, secret, active, sort_order`

// List returns all definitions ordered by sort_order, then code.
func (r *DefinitionRepository) List(ctx context.Context) ([]achievement.Definition, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+definitionColumns+` FROM achievement_definitions ORDER BY sort_order, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var defs []achievement.Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}
	return defs, nil
}

// Get returns a definition by code.
func (r *DefinitionRepository) Get(ctx context.Context, code achievement.Code) (*achievement.Definition, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM achievement_definitions WHERE code = $1`, string(code))
	def, err := scanDefinition(row)
	if IsNoRows(err) {
		return nil, shared.ErrDefinitionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &def, nil
}

// Save updates the mutable fields of an existing definition.
func (r *DefinitionRepository) Save(ctx context.Context, def achievement.Definition) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE achievement_definitions
		SET category = $2, difficulty = $3, secret = $4, active = $5, sort_order = $6, updated_at = NOW()
		WHERE code = $1`,
		string(def.Code), string(def.Category), string(def.Difficulty), def.Secret, def.Active, def.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("failed to save definition %s: %w", def.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrDefinitionNotFound
	}
	return nil
}

// Seed inserts missing definitions in one transaction; stored rows keep
// their administrator edits.
func (r *DefinitionRepository) Seed(ctx context.Context, defs []achievement.Definition) (int, error) {
	inserted := 0
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		for _, def := range defs {
			if err := def.Validate(); err != nil {
				return err
			}
			localized := def.Localized
			if localized == nil {
				localized = map[string]achievement.LocalizedText{}
			}
			tag, err := tx.Exec(ctx, `
				INSERT INTO achievement_definitions (`+definitionColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (code) DO NOTHING`,
				string(def.Code), def.Name, def.Description, localized, def.Icon,
				string(def.Category), string(def.Difficulty), def.Secret, def.Active, def.SortOrder,
			)
			if err != nil {
				return fmt.Errorf("failed to seed definition %s: %w", def.Code, err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func scanDefinition(row pgx.Row) (achievement.Definition, error) {
	var (
		def                        achievement.Definition
		code, category, difficulty string
	)
	err := row.Scan(&code, &def.Name, &def.Description, &def.Localized, &def.Icon,
		&category, &difficulty, &def.Secret, &def.Active, &def.SortOrder)
	if err != nil {
		if IsNoRows(err) {
			return def, err
		}
		return def, fmt.Errorf("failed to scan definition: %w", err)
	}
	def.Code = achievement.Code(code)
	def.Category = achievement.Category(category)
	def.Difficulty = achievement.Difficulty(difficulty)
	return def, nil
}
