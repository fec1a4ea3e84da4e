package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/achievement-engine/internal/domain/leaderboard"
)

var _ leaderboard.RankingCache = (*RankingCache)(nil)

// RankingCache implements leaderboard.RankingCache.
//
// Every ranking is stored twice: a fresh copy under ranking:... with the
// requested TTL and a last-known copy under ranking_last:... without expiry.
// Invalidation removes only fresh copies.
type RankingCache struct {
	cache *Cache
}

// NewRankingCache creates a ranking cache on top of Cache.
func NewRankingCache(cache *Cache) *RankingCache {
	return &RankingCache{cache: cache}
}

// Get returns the fresh ranking or leaderboard.ErrCacheMiss.
func (c *RankingCache) Get(ctx context.Context, scope leaderboard.Scope, kind leaderboard.Kind) (*leaderboard.Ranking, error) {
	return c.load(ctx, RankingKey(scope, kind))
}

// GetLastKnown returns the last stored ranking or leaderboard.ErrCacheMiss.
func (c *RankingCache) GetLastKnown(ctx context.Context, scope leaderboard.Scope, kind leaderboard.Kind) (*leaderboard.Ranking, error) {
	return c.load(ctx, LastKnownRankingKey(scope, kind))
}

// Set writes both copies in one MULTI/EXEC.
func (c *RankingCache) Set(ctx context.Context, scope leaderboard.Scope, r *leaderboard.Ranking, ttl time.Duration) error {
	if r == nil {
		return errors.New("ranking_cache: nil ranking")
	}
	data, err := encodeRanking(r)
	if err != nil {
		return err
	}
	_, err = c.cache.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, RankingKey(scope, r.Kind), data, ttl)
		p.Set(ctx, LastKnownRankingKey(scope, r.Kind), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ranking_cache: set %s: %w", r.Kind, err)
	}
	return nil
}

// Invalidate drops fresh copies. An organization-wide scope also drops the
// fresh copies of its workspaces.
func (c *RankingCache) Invalidate(ctx context.Context, scope leaderboard.Scope) error {
	if scope.WorkspaceID != "" {
		keys := make([]string, 0, len(leaderboard.AllKinds()))
		for _, kind := range leaderboard.AllKinds() {
			keys = append(keys, RankingKey(scope, kind))
		}
		return c.cache.Delete(ctx, keys...)
	}
	_, err := c.cache.DeleteByPattern(ctx, PrefixRanking+scope.OrganizationID+":*")
	return err
}

func (c *RankingCache) load(ctx context.Context, key string) (*leaderboard.Ranking, error) {
	data, err := c.cache.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, leaderboard.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return decodeRanking(data)
}

// RankingKey is the fresh-copy key: ranking:{org}:{workspace|all}:{kind}.
func RankingKey(scope leaderboard.Scope, kind leaderboard.Kind) string {
	return PrefixRanking + scopeKey(scope) + ":" + string(kind)
}

// LastKnownRankingKey is the last-known-copy key.
func LastKnownRankingKey(scope leaderboard.Scope, kind leaderboard.Kind) string {
	return PrefixRankingLast + scopeKey(scope) + ":" + string(kind)
}

func scopeKey(scope leaderboard.Scope) string {
	ws := scope.WorkspaceID
	if ws == "" {
		ws = "all"
	}
	return scope.OrganizationID + ":" + ws
}
