package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/domain/leaderboard"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM RANKINGS JOB
// Recomputes organization rankings ahead of reads so requests hit a fresh
// cache entry and the last-known copy stays recent.
// ══════════════════════════════════════════════════════════════════════════════

// RankingRefresher recomputes and caches every ranking of a scope.
type RankingRefresher interface {
	Refresh(ctx context.Context, scope leaderboard.Scope) (map[leaderboard.Kind]*leaderboard.Ranking, error)
}

// WarmRankingsJob implements scheduler.Job.
type WarmRankingsJob struct {
	orgs      OrganizationLister
	refresher RankingRefresher
	logger    *zap.Logger
}

// NewWarmRankingsJob creates the warm-up job.
func NewWarmRankingsJob(orgs OrganizationLister, refresher RankingRefresher, log *zap.Logger) *WarmRankingsJob {
	return &WarmRankingsJob{
		orgs:      orgs,
		refresher: refresher,
		logger:    logger.OrNop(log).With(logger.JobName("warm_rankings")),
	}
}

// Name implements scheduler.Job.
func (j *WarmRankingsJob) Name() string { return "warm_rankings" }

// Description implements scheduler.Job.
func (j *WarmRankingsJob) Description() string {
	return "Recomputes cached organization rankings"
}

// Run implements scheduler.Job.
func (j *WarmRankingsJob) Run(ctx context.Context) error {
	start := time.Now()
	orgs, err := j.orgs.Organizations(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}

	var errs []error
	warmed := 0
	for _, orgID := range orgs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := j.refresher.Refresh(ctx, leaderboard.Scope{OrganizationID: orgID}); err != nil {
			errs = append(errs, fmt.Errorf("organization %s: %w", orgID, err))
			continue
		}
		warmed++
	}

	j.logger.Info("rankings warmed",
		zap.Int("organizations", len(orgs)),
		zap.Int("warmed", warmed),
		logger.Latency(time.Since(start)),
	)
	return errors.Join(errs...)
}
