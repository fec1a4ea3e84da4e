// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/leaderboard"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Возвращает топ-K рейтинга и позицию запрашивающего пользователя.
// Рейтинги читаются через кеш; если пересчёт не удался, отдаётся последняя
// известная копия с флагом Stale.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// OrganizationID - организация (обязательно).
	OrganizationID string

	// WorkspaceID - сузить до участников пространства (пусто = вся организация).
	WorkspaceID string

	// Kind - вид рейтинга: difficulty, count, growth_rate.
	Kind string

	// UserID - запрашивающий пользователь; его запись возвращается в Self.
	UserID string

	// Limit - размер топа (по умолчанию 20, максимум 100).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *GetLeaderboardQuery) Validate() error {
	if q.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if _, err := leaderboard.ParseKind(q.Kind); err != nil {
		return fmt.Errorf("unknown ranking kind %q", q.Kind)
	}
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Limit == 0 {
		q.Limit = 20
	}
	return nil
}

// LeaderboardEntryDTO - строка рейтинга.
type LeaderboardEntryDTO struct {
	Rank   int     `json:"rank"`
	UserID string  `json:"user_id"`
	Score  float64 `json:"score"`
	Earned int     `json:"earned"`
}

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	Kind string `json:"kind"`

	// Entries - топ-K.
	Entries []LeaderboardEntryDTO `json:"entries"`

	// Self - запись запрашивающего (nil, если он приватный или не участник).
	Self *LeaderboardEntryDTO `json:"self,omitempty"`

	// TotalCount - участников в рейтинге.
	TotalCount int `json:"total_count"`

	// AsOf - момент расчёта.
	AsOf time.Time `json:"as_of"`

	// Stale - отдана последняя известная копия.
	Stale bool `json:"stale"`
}

// LeaderboardConfig настраивает кеширование.
type LeaderboardConfig struct {
	// TTL свежей копии.
	TTL time.Duration
}

// DefaultLeaderboardConfig returns default configuration.
func DefaultLeaderboardConfig() LeaderboardConfig {
	return LeaderboardConfig{TTL: 5 * time.Minute}
}

// GetLeaderboardHandler обрабатывает запросы на получение лидерборда.
type GetLeaderboardHandler struct {
	ledger      achievement.Ledger
	definitions achievement.DefinitionRepository
	facts       fact.Source
	calculator  *leaderboard.Calculator
	cache       leaderboard.RankingCache
	config      LeaderboardConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewGetLeaderboardHandler создаёт новый обработчик. cache может быть nil.
func NewGetLeaderboardHandler(
	ledger achievement.Ledger,
	definitions achievement.DefinitionRepository,
	facts fact.Source,
	calculator *leaderboard.Calculator,
	cache leaderboard.RankingCache,
	config LeaderboardConfig,
	log *zap.Logger,
) *GetLeaderboardHandler {
	return &GetLeaderboardHandler{
		ledger:      ledger,
		definitions: definitions,
		facts:       facts,
		calculator:  calculator,
		cache:       cache,
		config:      config,
		logger:      logger.OrNop(log).With(logger.Component("get_leaderboard")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle выполняет запрос на получение лидерборда.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrInvalidInput, err.Error(), err)
	}

	kind := leaderboard.Kind(query.Kind)
	scope := leaderboard.Scope{OrganizationID: query.OrganizationID, WorkspaceID: query.WorkspaceID}

	// Свежая копия из кеша
	if ranking := h.fromCache(ctx, scope, kind); ranking != nil {
		return toResult(ranking.Board(query.Limit, query.UserID)), nil
	}

	rankings, err := h.Refresh(ctx, scope)
	if err == nil {
		return toResult(rankings[kind].Board(query.Limit, query.UserID)), nil
	}

	// Пересчёт не удался: последняя известная копия
	h.logger.Warn("ranking computation failed, trying last known copy",
		logger.OrganizationID(scope.OrganizationID), logger.RankingKind(string(kind)), zap.Error(err))
	if h.cache != nil {
		last, lastErr := h.cache.GetLastKnown(ctx, scope, kind)
		if lastErr == nil && last != nil {
			board := last.Board(query.Limit, query.UserID)
			board.Stale = true
			return toResult(board), nil
		}
	}
	return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrRankingComputation, "failed to compute ranking", err)
}

// Refresh пересчитывает все три рейтинга скоупа и кладёт их в кеш.
func (h *GetLeaderboardHandler) Refresh(ctx context.Context, scope leaderboard.Scope) (map[leaderboard.Kind]*leaderboard.Ranking, error) {
	asOf := h.now()

	members, err := h.facts.Members(ctx, scope.OrganizationID, scope.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	userIDs := make([]string, 0, len(members))
	for _, m := range members {
		if !m.IsPrivate() {
			userIDs = append(userIDs, m.ID)
		}
	}

	records, err := h.ledger.ListByUsers(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defs, err := h.definitions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}

	rankings, err := h.calculator.Compute(leaderboard.Input{
		Members:     members,
		Records:     records,
		Definitions: achievement.NewDefinitionSet(defs),
		AsOf:        asOf,
	})
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		for _, kind := range leaderboard.AllKinds() {
			if err := h.cache.Set(ctx, scope, rankings[kind], h.config.TTL); err != nil {
				h.logger.Warn("failed to cache ranking",
					logger.OrganizationID(scope.OrganizationID), logger.RankingKind(string(kind)), zap.Error(err))
			}
		}
	}
	return rankings, nil
}

// fromCache возвращает свежую копию или nil.
func (h *GetLeaderboardHandler) fromCache(ctx context.Context, scope leaderboard.Scope, kind leaderboard.Kind) *leaderboard.Ranking {
	if h.cache == nil {
		return nil
	}
	ranking, err := h.cache.Get(ctx, scope, kind)
	if err != nil {
		if !errors.Is(err, leaderboard.ErrCacheMiss) {
			h.logger.Warn("ranking cache read failed", zap.Error(err))
		}
		return nil
	}
	return ranking
}

func toResult(b leaderboard.Board) *GetLeaderboardResult {
	result := &GetLeaderboardResult{
		Kind:       string(b.Kind),
		Entries:    make([]LeaderboardEntryDTO, 0, len(b.Top)),
		TotalCount: b.Total,
		AsOf:       b.AsOf,
		Stale:      b.Stale,
	}
	for _, e := range b.Top {
		result.Entries = append(result.Entries, toEntryDTO(e))
	}
	if b.Self != nil {
		self := toEntryDTO(*b.Self)
		result.Self = &self
	}
	return result
}

func toEntryDTO(e leaderboard.Entry) LeaderboardEntryDTO {
	return LeaderboardEntryDTO{
		Rank:   int(e.Rank),
		UserID: e.UserID,
		Score:  e.Score,
		Earned: e.Earned,
	}
}
