package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/achievement-engine/internal/application/saga"
	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/leaderboard"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/logger"
	"github.com/alem-hub/achievement-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP ACHIEVEMENTS JOB
// Evaluates every active achievement for every organization. Catches what
// incremental runs missed: dropped events, time-based predicates, newly
// activated definitions.
// ══════════════════════════════════════════════════════════════════════════════

// OrganizationEvaluator runs a full evaluation of one organization.
type OrganizationEvaluator interface {
	EvaluateOrganization(ctx context.Context, scope saga.Scope, asOf time.Time, codes []achievement.Code) (*saga.RunResult, error)
}

// OrganizationLister lists organizations to sweep.
type OrganizationLister interface {
	Organizations(ctx context.Context) ([]string, error)
}

// RankingInvalidator drops cached rankings after new awards.
type RankingInvalidator interface {
	Invalidate(ctx context.Context, scope leaderboard.Scope) error
}

// SweepAchievementsConfig contains configuration for the sweep job.
type SweepAchievementsConfig struct {
	// Concurrency is how many organizations are swept at once.
	Concurrency int

	// LockTTL bounds how long one instance may own an organization's sweep.
	LockTTL time.Duration

	// Location is the default zone for local-day predicates.
	Location *time.Location

	// Retrier retries fact source outages per organization.
	Retrier *retry.Retrier
}

// DefaultSweepAchievementsConfig returns sensible defaults.
func DefaultSweepAchievementsConfig() SweepAchievementsConfig {
	return SweepAchievementsConfig{
		Concurrency: 2,
		LockTTL:     15 * time.Minute,
		Location:    time.UTC,
		Retrier:     retry.FactSourceRetrier(shared.IsRetryable, nil),
	}
}

// SweepStats summarizes the last sweep.
type SweepStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Organizations int
	Swept         int
	Locked        int
	Failed        int
	Users         int
	Earned        int
}

// SweepAchievementsJob implements scheduler.Job.
type SweepAchievementsJob struct {
	orgs      OrganizationLister
	evaluator OrganizationEvaluator
	locker    Locker
	rankings  RankingInvalidator
	config    SweepAchievementsConfig
	logger    *zap.Logger
	now       func() time.Time

	lastStats atomic.Pointer[SweepStats]
}

// NewSweepAchievementsJob creates the sweep job. rankings may be nil.
func NewSweepAchievementsJob(
	orgs OrganizationLister,
	evaluator OrganizationEvaluator,
	locker Locker,
	rankings RankingInvalidator,
	log *zap.Logger,
	config SweepAchievementsConfig,
) *SweepAchievementsJob {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 15 * time.Minute
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Retrier == nil {
		config.Retrier = retry.New(retry.WithMaxAttempts(1))
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &SweepAchievementsJob{
		orgs:      orgs,
		evaluator: evaluator,
		locker:    locker,
		rankings:  rankings,
		config:    config,
		logger:    logger.OrNop(log).With(logger.JobName("sweep_achievements")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Name implements scheduler.Job.
func (j *SweepAchievementsJob) Name() string { return "sweep_achievements" }

// Description implements scheduler.Job.
func (j *SweepAchievementsJob) Description() string {
	return "Evaluates every active achievement for every organization"
}

// LastStats returns the stats of the last completed sweep, or nil.
func (j *SweepAchievementsJob) LastStats() *SweepStats {
	return j.lastStats.Load()
}

// Run implements scheduler.Job. Organizations fail independently; the
// returned error joins the failures.
func (j *SweepAchievementsJob) Run(ctx context.Context) error {
	stats := &SweepStats{StartedAt: j.now()}
	asOf := stats.StartedAt

	orgs, err := retry.DoWithData(ctx, j.orgs.Organizations, j.config.Retrier.Options()...)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	stats.Organizations = len(orgs)

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for _, orgID := range orgs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result, locked, err := j.sweepOrganization(gctx, orgID, asOf)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Failed++
				errs = append(errs, fmt.Errorf("organization %s: %w", orgID, err))
			case locked:
				stats.Locked++
			default:
				stats.Swept++
			}
			if result != nil {
				stats.Users += result.Users
				stats.Earned += result.Earned
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.CompletedAt = j.now()
	j.lastStats.Store(stats)
	j.logger.Info("sweep finished",
		zap.Int("organizations", stats.Organizations),
		zap.Int("swept", stats.Swept),
		zap.Int("locked", stats.Locked),
		zap.Int("failed", stats.Failed),
		zap.Int("users", stats.Users),
		zap.Int("earned", stats.Earned),
		logger.Latency(stats.CompletedAt.Sub(stats.StartedAt)),
	)
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// sweepOrganization returns locked=true when another instance owns the sweep.
func (j *SweepAchievementsJob) sweepOrganization(ctx context.Context, orgID string, asOf time.Time) (*saga.RunResult, bool, error) {
	log := j.logger.With(logger.OrganizationID(orgID))

	release, acquired, err := j.locker.Acquire(ctx, "sweep:"+orgID, j.config.LockTTL)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		log.Debug("sweep already running elsewhere")
		return nil, true, nil
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release sweep lock", zap.Error(err))
		}
	}()

	scope := saga.Scope{OrganizationID: orgID, Location: j.config.Location}
	var result *saga.RunResult
	err = j.config.Retrier.Do(ctx, func(ctx context.Context) error {
		var runErr error
		result, runErr = j.evaluator.EvaluateOrganization(ctx, scope, asOf, nil)
		return runErr
	})
	if err != nil {
		return result, false, err
	}

	if result != nil && result.Earned > 0 && j.rankings != nil {
		if err := j.rankings.Invalidate(ctx, leaderboard.Scope{OrganizationID: orgID}); err != nil {
			log.Warn("failed to invalidate rankings", zap.Error(err))
		}
	}
	return result, false, nil
}
