package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/application/saga"
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/predicate"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET COLLECTION QUERY
// Все достижения каталога с отметкой о получении и, опционально, прогрессом.
// Секретные неполученные достижения не раскрывают ни код, ни текст, ни прогресс.
// ══════════════════════════════════════════════════════════════════════════════

// GetCollectionQuery содержит параметры запроса коллекции.
type GetCollectionQuery struct {
	UserID         string
	OrganizationID string

	// Language - значение Accept-Language, например "ru-RU,ru;q=0.9".
	Language string

	// IncludeProgress - посчитать прогресс по неполученным достижениям.
	IncludeProgress bool

	// Location - часовой пояс пользователя для прогресса (nil = по умолчанию).
	Location *time.Location
}

// Validate проверяет корректность параметров запроса.
func (q GetCollectionQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.IncludeProgress && q.OrganizationID == "" {
		return errors.New("organization_id is required for progress")
	}
	return nil
}

// CollectionItemDTO - одно достижение в коллекции.
type CollectionItemDTO struct {
	Code        string     `json:"code,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Category    string     `json:"category"`
	Difficulty  string     `json:"difficulty"`
	Secret      bool       `json:"secret"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
	Notified    bool       `json:"notified"`
	Progress    int        `json:"progress"`
	Threshold   int        `json:"threshold"`
}

// GetCollectionResult содержит коллекцию пользователя.
type GetCollectionResult struct {
	UserID string `json:"user_id"`

	// Language - выбранная локализация ("" - базовый текст).
	Language string `json:"language"`

	Items       []CollectionItemDTO `json:"items"`
	EarnedCount int                 `json:"earned_count"`
	TotalCount  int                 `json:"total_count"`
}

// ProgressReader считает прогресс без записи в леджер.
type ProgressReader interface {
	Progress(ctx context.Context, scope saga.Scope, asOf time.Time) (map[achievement.Code]predicate.Result, error)
}

// GetCollectionHandler обрабатывает запросы коллекции.
type GetCollectionHandler struct {
	definitions achievement.DefinitionRepository
	ledger      achievement.Ledger
	progress    ProgressReader
	logger      *zap.Logger
	now         func() time.Time
}

// NewGetCollectionHandler создаёт обработчик. progress может быть nil.
func NewGetCollectionHandler(
	definitions achievement.DefinitionRepository,
	ledger achievement.Ledger,
	progress ProgressReader,
	log *zap.Logger,
) *GetCollectionHandler {
	return &GetCollectionHandler{
		definitions: definitions,
		ledger:      ledger,
		progress:    progress,
		logger:      logger.OrNop(log).With(logger.Component("get_collection")),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Handle выполняет запрос коллекции.
func (h *GetCollectionHandler) Handle(ctx context.Context, query GetCollectionQuery) (*GetCollectionResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetCollection", shared.ErrInvalidInput, err.Error(), err)
	}

	defs, err := h.definitions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_collection: load definitions: %w", err)
	}
	records, err := h.ledger.ListByUser(ctx, query.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_collection: load records: %w", err)
	}
	earned := make(map[achievement.Code]achievement.Record, len(records))
	for _, rec := range records {
		earned[rec.Code] = rec
	}

	progress := h.loadProgress(ctx, query)
	lang := newTextPicker(defs).pick(query.Language)

	result := &GetCollectionResult{
		UserID:   query.UserID,
		Language: lang,
		Items:    make([]CollectionItemDTO, 0, len(defs)),
	}
	for i := range defs {
		def := &defs[i]
		rec, has := earned[def.Code]

		// Отключённые и не полученные не показываются
		if !def.Active && !has {
			continue
		}

		item := CollectionItemDTO{
			Category:   string(def.Category),
			Difficulty: string(def.Difficulty),
			Secret:     def.Secret,
			Earned:     has,
		}

		if def.Secret && !has {
			text := placeholder(lang)
			item.Name = text.Name
			item.Description = text.Description
			item.Icon = SecretIcon
			result.Items = append(result.Items, item)
			continue
		}

		text := def.Text(lang)
		item.Code = string(def.Code)
		item.Name = text.Name
		item.Description = text.Description
		item.Icon = def.Icon

		if has {
			earnedAt := rec.EarnedAt
			item.EarnedAt = &earnedAt
			item.Notified = rec.IsNotified()
			result.EarnedCount++
		}
		if p, ok := progress[def.Code]; ok {
			item.Threshold = p.Threshold
			item.Progress = p.Progress
			if has && item.Progress < item.Threshold {
				item.Progress = item.Threshold
			}
		}
		result.Items = append(result.Items, item)
	}
	result.TotalCount = len(result.Items)

	return result, nil
}

// loadProgress возвращает прогресс или nil; ошибка не ломает коллекцию.
func (h *GetCollectionHandler) loadProgress(ctx context.Context, query GetCollectionQuery) map[achievement.Code]predicate.Result {
	if !query.IncludeProgress || h.progress == nil {
		return nil
	}
	progress, err := h.progress.Progress(ctx, saga.Scope{
		OrganizationID: query.OrganizationID,
		UserID:         query.UserID,
		Location:       query.Location,
	}, h.now())
	if err != nil {
		h.logger.Warn("progress unavailable, serving collection without it",
			logger.UserID(query.UserID), zap.Error(err))
		return nil
	}
	return progress
}
