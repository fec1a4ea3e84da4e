package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET UNNOTIFIED QUERY
// Полученные, но ещё не показанные пользователю достижения, для уведомлений.
// ══════════════════════════════════════════════════════════════════════════════

// GetUnnotifiedQuery содержит параметры запроса.
type GetUnnotifiedQuery struct {
	UserID string

	// Language - значение Accept-Language.
	Language string
}

// Validate проверяет корректность параметров запроса.
func (q GetUnnotifiedQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// UnnotifiedDTO - достижение, ожидающее уведомления.
type UnnotifiedDTO struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Icon        string    `json:"icon"`
	Difficulty  string    `json:"difficulty"`
	EarnedAt    time.Time `json:"earned_at"`
}

// GetUnnotifiedHandler обрабатывает запрос.
type GetUnnotifiedHandler struct {
	definitions achievement.DefinitionRepository
	ledger      achievement.Ledger
}

// NewGetUnnotifiedHandler создаёт обработчик.
func NewGetUnnotifiedHandler(definitions achievement.DefinitionRepository, ledger achievement.Ledger) *GetUnnotifiedHandler {
	return &GetUnnotifiedHandler{definitions: definitions, ledger: ledger}
}

// Handle возвращает неуведомлённые записи по времени получения.
func (h *GetUnnotifiedHandler) Handle(ctx context.Context, query GetUnnotifiedQuery) ([]UnnotifiedDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetUnnotified", shared.ErrInvalidInput, err.Error(), err)
	}

	records, err := h.ledger.ListUnnotified(ctx, query.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_unnotified: load records: %w", err)
	}
	if len(records) == 0 {
		return []UnnotifiedDTO{}, nil
	}

	defs, err := h.definitions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_unnotified: load definitions: %w", err)
	}
	set := achievement.NewDefinitionSet(defs)
	lang := newTextPicker(defs).pick(query.Language)

	out := make([]UnnotifiedDTO, 0, len(records))
	for _, rec := range records {
		dto := UnnotifiedDTO{Code: string(rec.Code), Name: string(rec.Code), EarnedAt: rec.EarnedAt}
		if def, ok := set[rec.Code]; ok {
			text := def.Text(lang)
			dto.Name = text.Name
			dto.Description = text.Description
			dto.Icon = def.Icon
			dto.Difficulty = string(def.Difficulty)
		}
		out = append(out, dto)
	}
	return out, nil
}
