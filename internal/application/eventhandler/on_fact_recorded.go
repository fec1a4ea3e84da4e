// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/application/saga"
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/leaderboard"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/logger"
	"github.com/alem-hub/achievement-engine/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON FACT RECORDED HANDLER
// Инкрементальная оценка: после действия пользователя проверяются только
// предикаты, на которые это действие может повлиять. Предикаты, зависящие
// только от времени, сюда не попадают и считаются плановым обходом.
// ═══════════════════════════════════════════════════════════════════════════

// UserEvaluator: часть EvaluationFlow, нужная обработчику.
type UserEvaluator interface {
	EvaluateUser(ctx context.Context, scope saga.Scope, asOf time.Time, codes []achievement.Code) (*saga.RunResult, error)
}

// TriggerIndex сопоставляет действие с кодами.
type TriggerIndex interface {
	TriggeredBy(action fact.ActionType) []achievement.Code
}

// FactRecordedConfig содержит конфигурацию обработчика.
type FactRecordedConfig struct {
	// EvaluationTimeout: предел на одну оценку.
	EvaluationTimeout time.Duration

	// DefaultLocation: пояс, если в событии его нет или он неизвестен.
	DefaultLocation *time.Location

	// InvalidateRankings: сбрасывать свежие рейтинги организации после новых достижений.
	InvalidateRankings bool
}

// DefaultFactRecordedConfig возвращает конфигурацию по умолчанию.
func DefaultFactRecordedConfig() FactRecordedConfig {
	return FactRecordedConfig{
		EvaluationTimeout:  15 * time.Second,
		DefaultLocation:    time.UTC,
		InvalidateRankings: true,
	}
}

// OnFactRecordedHandler обрабатывает событие facts.recorded.
type OnFactRecordedHandler struct {
	evaluator UserEvaluator
	triggers  TriggerIndex
	rankings  leaderboard.RankingCache
	logger    *zap.Logger
	config    FactRecordedConfig
}

// NewOnFactRecordedHandler создаёт обработчик. rankings может быть nil.
func NewOnFactRecordedHandler(
	evaluator UserEvaluator,
	triggers TriggerIndex,
	rankings leaderboard.RankingCache,
	log *zap.Logger,
	config FactRecordedConfig,
) *OnFactRecordedHandler {
	if config.DefaultLocation == nil {
		config.DefaultLocation = time.UTC
	}
	return &OnFactRecordedHandler{
		evaluator: evaluator,
		triggers:  triggers,
		rankings:  rankings,
		logger:    logger.OrNop(log).With(zap.String("handler", "on_fact_recorded")),
		config:    config,
	}
}

// Handle обрабатывает событие.
// Реализует интерфейс shared.EventHandler.
func (h *OnFactRecordedHandler) Handle(event shared.Event) error {
	ctx := context.Background()
	if h.config.EvaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.EvaluationTimeout)
		defer cancel()
	}
	return h.HandleContext(ctx, event)
}

// HandleContext: Handle с контекстом вызывающего.
func (h *OnFactRecordedHandler) HandleContext(ctx context.Context, event shared.Event) error {
	factEvent, err := shared.AsFactRecorded(event)
	if err != nil {
		h.logger.Warn("dropping malformed fact event",
			zap.String("event_type", string(event.EventType())),
			zap.Error(err),
		)
		return nil
	}

	action := fact.ActionType(factEvent.ActionType)
	codes := h.triggers.TriggeredBy(action)
	if len(codes) == 0 {
		h.logger.Debug("no predicates triggered", logger.ActionType(factEvent.ActionType))
		return nil
	}

	loc := h.config.DefaultLocation
	if factEvent.Timezone != "" {
		if loc, err = timeutil.LoadLocation(factEvent.Timezone); err != nil {
			h.logger.Warn("unknown timezone, using default",
				zap.String("timezone", factEvent.Timezone), zap.Error(err))
			loc = h.config.DefaultLocation
		}
	}

	asOf := factEvent.OccurredAt()
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	result, err := h.evaluator.EvaluateUser(ctx, saga.Scope{
		OrganizationID: factEvent.OrganizationID,
		WorkspaceID:    factEvent.WorkspaceID,
		UserID:         factEvent.UserID,
		Location:       loc,
	}, asOf, codes)
	if err != nil {
		h.logger.Error("incremental evaluation failed",
			logger.UserID(factEvent.UserID),
			logger.OrganizationID(factEvent.OrganizationID),
			logger.ActionType(factEvent.ActionType),
			zap.Error(err),
		)
		if errors.Is(err, shared.ErrFactSourceUnavailable) {
			// Плановый обход подберёт пропущенное.
			return err
		}
		return nil
	}

	h.logger.Info("incremental evaluation done",
		logger.UserID(factEvent.UserID),
		logger.ActionType(factEvent.ActionType),
		logger.RunID(result.RunID),
		zap.Int("earned", result.Earned),
		zap.Int("failed", result.Failed),
	)

	if result.Earned > 0 && h.rankings != nil && h.config.InvalidateRankings {
		scope := leaderboard.Scope{OrganizationID: factEvent.OrganizationID}
		if err := h.rankings.Invalidate(ctx, scope); err != nil {
			h.logger.Warn("failed to invalidate rankings", zap.Error(err))
		}
	}
	return nil
}
