// Package leaderboard содержит доменную модель рейтингов достижений.
// Три независимых рейтинга строятся из леджера: по сложности, по количеству
// и по скорости роста. Пользователи с приватной видимостью не попадают ни в один.
package leaderboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Rank представляет позицию в рейтинге. Начинается с 1.
type Rank int

// IsValid проверяет, что ранг положительный.
func (r Rank) IsValid() bool {
	return r > 0
}

// String возвращает строковое представление ранга.
func (r Rank) String() string {
	return fmt.Sprintf("#%d", r)
}

// Kind: вид рейтинга.
type Kind string

const (
	// KindDifficulty: сумма весов сложности (Easy=1, Medium=2, Hard=3).
	KindDifficulty Kind = "difficulty"
	// KindCount: количество полученных достижений.
	KindCount Kind = "count"
	// KindGrowthRate: достижений за скользящее окно, делённое на длину окна в днях.
	KindGrowthRate Kind = "growth_rate"
)

// AllKinds возвращает все виды рейтингов.
func AllKinds() []Kind {
	return []Kind{KindDifficulty, KindCount, KindGrowthRate}
}

// ParseKind разбирает вид рейтинга.
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", shared.ErrInvalidRankingKind
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry: строка рейтинга.
type Entry struct {
	UserID string  `json:"user_id"`
	Rank   Rank    `json:"rank"`
	Score  float64 `json:"score"`

	// Earned: сколько записей леджера вошло в счёт.
	Earned int `json:"earned"`

	// ReachedAt: когда пользователь набрал текущий счёт (самая поздняя из
	// учтённых записей). Нулевое время, если записей нет.
	ReachedAt time.Time `json:"reached_at"`
}

// less: детерминированный порядок: больший счёт, затем кто раньше набрал
// счёт, затем userId.
func less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.ReachedAt.Equal(b.ReachedAt) {
		switch {
		case a.ReachedAt.IsZero():
			return false
		case b.ReachedAt.IsZero():
			return true
		}
		return a.ReachedAt.Before(b.ReachedAt)
	}
	return a.UserID < b.UserID
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING
// ══════════════════════════════════════════════════════════════════════════════

// Ranking: упорядоченный рейтинг одного вида на момент AsOf.
// Сериализуется целиком, поэтому поля экспортированы.
type Ranking struct {
	Kind    Kind      `json:"kind"`
	AsOf    time.Time `json:"as_of"`
	Entries []Entry   `json:"entries"`
}

// NewRanking сортирует записи и присваивает ранги 1..n.
// Общих рангов нет: тай-брейк задаёт полный порядок.
func NewRanking(kind Kind, asOf time.Time, entries []Entry) *Ranking {
	sorted := append([]Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	for i := range sorted {
		sorted[i].Rank = Rank(i + 1)
	}
	return &Ranking{Kind: kind, AsOf: asOf, Entries: sorted}
}

// GetByID возвращает запись пользователя или nil.
func (r *Ranking) GetByID(userID string) *Entry {
	for i := range r.Entries {
		if r.Entries[i].UserID == userID {
			e := r.Entries[i]
			return &e
		}
	}
	return nil
}

// Top возвращает топ-N записей.
func (r *Ranking) Top(n int) []Entry {
	if n <= 0 {
		return nil
	}
	if n > len(r.Entries) {
		n = len(r.Entries)
	}
	result := make([]Entry, n)
	copy(result, r.Entries[:n])
	return result
}

// Count возвращает количество участников.
func (r *Ranking) Count() int {
	return len(r.Entries)
}

// Board: то, что видит запрашивающий: топ-K и собственная позиция,
// даже если она за пределами топа.
type Board struct {
	Kind  Kind      `json:"kind"`
	AsOf  time.Time `json:"as_of"`
	Top   []Entry   `json:"top"`
	Self  *Entry    `json:"self,omitempty"`
	Total int       `json:"total"`

	// Stale: рейтинг взят из последней известной копии после ошибки.
	Stale bool `json:"stale"`
}

// Board строит представление для пользователя.
func (r *Ranking) Board(topK int, userID string) Board {
	b := Board{
		Kind:  r.Kind,
		AsOf:  r.AsOf,
		Top:   r.Top(topK),
		Total: r.Count(),
	}
	if userID != "" {
		b.Self = r.GetByID(userID)
	}
	return b
}
