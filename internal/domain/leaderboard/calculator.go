package leaderboard

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATOR
// ══════════════════════════════════════════════════════════════════════════════

// Input: всё, что нужно для расчёта рейтингов одного скоупа.
type Input struct {
	// Members: участники скоупа (организация или пространство).
	Members []fact.User

	// Records: записи леджера участников.
	Records []achievement.Record

	// Definitions: для весов сложности.
	Definitions achievement.DefinitionSet

	AsOf time.Time
}

// Calculator считает три рейтинга. Чистая функция от Input.
type Calculator struct {
	growthWindow time.Duration
}

// NewCalculator создаёт калькулятор с окном для рейтинга роста.
func NewCalculator(growthWindow time.Duration) *Calculator {
	return &Calculator{growthWindow: growthWindow}
}

// GrowthWindow возвращает длину окна.
func (c *Calculator) GrowthWindow() time.Duration {
	return c.growthWindow
}

// Compute строит все три рейтинга.
func (c *Calculator) Compute(in Input) (map[Kind]*Ranking, error) {
	out := make(map[Kind]*Ranking, 3)
	for _, kind := range AllKinds() {
		r, err := c.ComputeKind(kind, in)
		if err != nil {
			return nil, err
		}
		out[kind] = r
	}
	return out, nil
}

// ComputeKind строит один рейтинг.
// Приватные пользователи исключаются; записи не-участников и записи позже
// AsOf не учитываются.
func (c *Calculator) ComputeKind(kind Kind, in Input) (*Ranking, error) {
	windowDays := c.growthWindow.Hours() / 24
	if kind == KindGrowthRate && windowDays <= 0 {
		return nil, shared.WrapError("leaderboard", "Compute", shared.ErrRankingComputation,
			"growth window must be positive", shared.ErrValueOutOfRange)
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	entries := make(map[string]*Entry, len(in.Members))
	order := make([]string, 0, len(in.Members))
	for _, m := range in.Members {
		if m.IsPrivate() {
			continue
		}
		if _, dup := entries[m.ID]; dup {
			continue
		}
		entries[m.ID] = &Entry{UserID: m.ID}
		order = append(order, m.ID)
	}

	windowStart := in.AsOf.Add(-c.growthWindow)
	for _, rec := range in.Records {
		e, ok := entries[rec.UserID]
		if !ok || rec.EarnedAt.After(in.AsOf) {
			continue
		}

		var points float64
		switch kind {
		case KindDifficulty:
			def, known := in.Definitions[rec.Code]
			if !known {
				continue
			}
			points = float64(def.Difficulty.Weight())
		case KindCount:
			points = 1
		case KindGrowthRate:
			if !rec.EarnedAt.After(windowStart) {
				continue
			}
			points = 1
		}

		e.Score += points
		e.Earned++
		if rec.EarnedAt.After(e.ReachedAt) {
			e.ReachedAt = rec.EarnedAt
		}
	}

	list := make([]Entry, 0, len(order))
	for _, id := range order {
		e := entries[id]
		if kind == KindGrowthRate {
			e.Score = growthRate(e.Earned, windowDays)
		}
		list = append(list, *e)
	}
	return NewRanking(kind, in.AsOf, list), nil
}

// growthRate: записей в день, округлено до growthPrecision знаков, чтобы
// равные счёты сравнивались как равные.
func growthRate(earned int, windowDays float64) float64 {
	return decimal.NewFromInt(int64(earned)).
		DivRound(decimal.NewFromFloat(windowDays), growthPrecision).
		InexactFloat64()
}

const growthPrecision = 6
