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
// MARK NOTIFIED COMMAND
// Acknowledges that the user has seen an earned achievement. The transition
// nil → notified_at happens once; repeating it is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// MarkNotifiedCommand marks one record, or every pending record when Code is empty.
type MarkNotifiedCommand struct {
	UserID string
	Code   string
}

// Validate validates the command.
func (c MarkNotifiedCommand) Validate() error {
	if c.UserID == "" {
		return errors.New("mark_notified: user_id is required")
	}
	if c.Code != "" {
		if err := achievement.Code(c.Code).Validate(); err != nil {
			return fmt.Errorf("mark_notified: %w", err)
		}
	}
	return nil
}

// MarkNotifiedResult reports how many records changed.
type MarkNotifiedResult struct {
	UserID   string
	Marked   int
	MarkedAt time.Time
}

// MarkNotifiedHandler handles the MarkNotifiedCommand.
type MarkNotifiedHandler struct {
	ledger achievement.Ledger
	logger *zap.Logger
	now    func() time.Time
}

// NewMarkNotifiedHandler creates a new MarkNotifiedHandler.
func NewMarkNotifiedHandler(ledger achievement.Ledger, log *zap.Logger) *MarkNotifiedHandler {
	return &MarkNotifiedHandler{
		ledger: ledger,
		logger: logger.OrNop(log).With(logger.Component("mark_notified")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle executes the command.
func (h *MarkNotifiedHandler) Handle(ctx context.Context, cmd MarkNotifiedCommand) (*MarkNotifiedResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("mark_notified: validation failed: %w: %w", shared.ErrInvalidInput, err)
	}

	at := h.now()
	result := &MarkNotifiedResult{UserID: cmd.UserID, MarkedAt: at}

	if cmd.Code == "" {
		n, err := h.ledger.MarkAllNotified(ctx, cmd.UserID, at)
		if err != nil {
			return nil, fmt.Errorf("mark_notified: %w", err)
		}
		result.Marked = n
	} else {
		if err := h.ledger.MarkNotified(ctx, cmd.UserID, achievement.Code(cmd.Code), at); err != nil {
			return nil, fmt.Errorf("mark_notified: %w", err)
		}
		result.Marked = 1
	}

	h.logger.Debug("achievements marked notified",
		logger.UserID(cmd.UserID), zap.Int("marked", result.Marked))
	return result, nil
}
