package leaderboard

import (
	"context"
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// ErrCacheMiss: в кеше нет рейтинга для ключа.
var ErrCacheMiss = errors.New("leaderboard: cache miss")

// Scope: организация или одно пространство внутри неё.
type Scope struct {
	OrganizationID string
	WorkspaceID    string
}

// RankingCache хранит рассчитанные рейтинги.
// Свежая копия живёт TTL; последняя известная копия хранится без срока и
// отдаётся, когда пересчёт не удался.
type RankingCache interface {
	// Get возвращает свежий рейтинг или ErrCacheMiss.
	Get(ctx context.Context, scope Scope, kind Kind) (*Ranking, error)

	// Set сохраняет свежий рейтинг и обновляет последнюю известную копию.
	Set(ctx context.Context, scope Scope, r *Ranking, ttl time.Duration) error

	// GetLastKnown возвращает последнюю известную копию или ErrCacheMiss.
	GetLastKnown(ctx context.Context, scope Scope, kind Kind) (*Ranking, error)

	// Invalidate удаляет свежие копии скоупа (последняя известная остаётся).
	Invalidate(ctx context.Context, scope Scope) error
}
