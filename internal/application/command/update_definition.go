// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE DEFINITION COMMAND
// Administration of the achievement catalog. The code is immutable; only
// presentation and scoring fields change. Deactivated definitions are no
// longer evaluated, but records already earned stay in the ledger.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateDefinitionCommand contains the fields to change.
type UpdateDefinitionCommand struct {
	// Code identifies the definition.
	Code string

	// Changes contains optional updates; nil values mean "don't change".
	Changes DefinitionUpdates

	// CorrelationID for tracing.
	CorrelationID string
}

// DefinitionUpdates contains optional definition updates.
type DefinitionUpdates struct {
	Category   *string
	Difficulty *string
	Secret     *bool
	Active     *bool
	SortOrder  *int
}

// Validate validates the command.
func (c UpdateDefinitionCommand) Validate() error {
	if c.Code == "" {
		return errors.New("update_definition: code is required")
	}
	if err := achievement.Code(c.Code).Validate(); err != nil {
		return fmt.Errorf("update_definition: %w", err)
	}
	if c.Changes.Difficulty != nil {
		if _, err := achievement.ParseDifficulty(*c.Changes.Difficulty); err != nil {
			return errors.New("update_definition: difficulty must be easy, medium or hard")
		}
	}
	if c.Changes.Category != nil && *c.Changes.Category == "" {
		return errors.New("update_definition: category cannot be empty")
	}
	if c.Changes.SortOrder != nil && *c.Changes.SortOrder < 0 {
		return errors.New("update_definition: sort_order cannot be negative")
	}
	return nil
}

// toUpdate converts the command into a domain update.
func (c UpdateDefinitionCommand) toUpdate() achievement.Update {
	var u achievement.Update
	if c.Changes.Category != nil {
		cat := achievement.Category(*c.Changes.Category)
		u.Category = &cat
	}
	if c.Changes.Difficulty != nil {
		d, _ := achievement.ParseDifficulty(*c.Changes.Difficulty)
		u.Difficulty = &d
	}
	u.Secret = c.Changes.Secret
	u.Active = c.Changes.Active
	u.SortOrder = c.Changes.SortOrder
	return u
}

// UpdateDefinitionResult contains the result of the update.
type UpdateDefinitionResult struct {
	// Definition is the stored definition after the update.
	Definition achievement.Definition

	// ChangedFields lists which fields were changed.
	ChangedFields []string

	// UpdatedAt is when the definition was updated.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateDefinitionHandler handles the UpdateDefinitionCommand.
type UpdateDefinitionHandler struct {
	definitions achievement.DefinitionRepository
	logger      *zap.Logger
	now         func() time.Time
}

// NewUpdateDefinitionHandler creates a new UpdateDefinitionHandler.
func NewUpdateDefinitionHandler(definitions achievement.DefinitionRepository, log *zap.Logger) *UpdateDefinitionHandler {
	return &UpdateDefinitionHandler{
		definitions: definitions,
		logger:      logger.OrNop(log).With(logger.Component("update_definition")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the update definition command.
func (h *UpdateDefinitionHandler) Handle(ctx context.Context, cmd UpdateDefinitionCommand) (*UpdateDefinitionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("update_definition: validation failed: %w: %w", shared.ErrInvalidInput, err)
	}

	current, err := h.definitions.Get(ctx, achievement.Code(cmd.Code))
	if err != nil {
		return nil, fmt.Errorf("update_definition: definition not found: %w", err)
	}

	updated, err := cmd.toUpdate().Apply(*current)
	if err != nil {
		return nil, fmt.Errorf("update_definition: %w", err)
	}

	changed := changedFields(*current, updated)
	if len(changed) > 0 {
		if err := h.definitions.Save(ctx, updated); err != nil {
			return nil, fmt.Errorf("update_definition: failed to save: %w", err)
		}
		h.logger.Info("definition updated",
			logger.Code(cmd.Code),
			zap.Strings("changed", changed),
			zap.String("correlation_id", cmd.CorrelationID),
		)
	}

	return &UpdateDefinitionResult{
		Definition:    updated,
		ChangedFields: changed,
		UpdatedAt:     h.now(),
	}, nil
}

func changedFields(before, after achievement.Definition) []string {
	changed := make([]string, 0)
	if before.Category != after.Category {
		changed = append(changed, "category")
	}
	if before.Difficulty != after.Difficulty {
		changed = append(changed, "difficulty")
	}
	if before.Secret != after.Secret {
		changed = append(changed, "secret")
	}
	if before.Active != after.Active {
		changed = append(changed, "active")
	}
	if before.SortOrder != after.SortOrder {
		changed = append(changed, "sort_order")
	}
	return changed
}
