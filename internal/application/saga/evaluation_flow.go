// Package saga contains the multi-step business processes that coordinate
// the fact source, the predicate registry and the achievement ledger.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/predicate"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION FLOW
// Flow: Load Definitions → Load Facts (one snapshot) → Load Earned Set →
//
//	Evaluate (parallel per user) → Commit (conflict-skip insert) → Publish Events
//
// Every predicate of a run sees the same snapshot. A failing predicate is
// logged and counted; it never aborts the rest of the run.
// ══════════════════════════════════════════════════════════════════════════════

// Scope selects who is evaluated.
type Scope struct {
	// OrganizationID is always required.
	OrganizationID string

	// WorkspaceID narrows an organization run to one workspace's members.
	WorkspaceID string

	// UserID is required for single-user runs.
	UserID string

	// Location is the zone for day boundaries. Nil means the flow default.
	Location *time.Location
}

// Validate checks if the scope is valid.
func (s Scope) Validate(requireUser bool) error {
	if s.OrganizationID == "" {
		return errors.New("evaluation_flow: organization ID is required")
	}
	if requireUser && s.UserID == "" {
		return errors.New("evaluation_flow: user ID is required")
	}
	return nil
}

// RunResult summarizes one evaluation run.
type RunResult struct {
	RunID string

	// Users is the number of users whose evaluation started.
	Users int

	// Evaluated counts predicate calls that returned a result.
	Evaluated int

	// Earned counts records this run inserted.
	Earned int

	// Failed counts predicate or ledger failures.
	Failed int

	// Skipped counts (user, code) pairs already in the ledger.
	Skipped int

	// Awarded lists the inserted records by user, then code.
	Awarded []achievement.Record

	StartedAt  time.Time
	FinishedAt time.Time
}

// EvaluationStep names a stage of the flow.
type EvaluationStep string

const (
	StepValidate        EvaluationStep = "validate"
	StepLoadDefinitions EvaluationStep = "load_definitions"
	StepLoadMembers     EvaluationStep = "load_members"
	StepLoadFacts       EvaluationStep = "load_facts"
	StepLoadLedger      EvaluationStep = "load_ledger"
	StepEvaluate        EvaluationStep = "evaluate"
	StepPublishEvents   EvaluationStep = "publish_events"
)

// EvaluationFlowError reports the step a run failed at.
type EvaluationFlowError struct {
	Step  EvaluationStep
	RunID string
	Cause error
}

// Error implements error.
func (e *EvaluationFlowError) Error() string {
	return fmt.Sprintf("evaluation flow %s failed at step '%s': %v", e.RunID, e.Step, e.Cause)
}

// Unwrap returns the cause.
func (e *EvaluationFlowError) Unwrap() error {
	return e.Cause
}

// EvaluationFlowConfig contains configuration for the flow.
type EvaluationFlowConfig struct {
	// Concurrency bounds users evaluated in parallel.
	Concurrency int

	// FactTimeout bounds loading the snapshot.
	FactTimeout time.Duration

	// CommitTimeout bounds ledger writes of one user after cancellation.
	CommitTimeout time.Duration

	// DefaultLocation is used when the scope has none.
	DefaultLocation *time.Location

	PublishEvents bool
}

// DefaultEvaluationFlowConfig returns default configuration.
func DefaultEvaluationFlowConfig() EvaluationFlowConfig {
	return EvaluationFlowConfig{
		Concurrency:     8,
		FactTimeout:     30 * time.Second,
		CommitTimeout:   10 * time.Second,
		DefaultLocation: time.UTC,
		PublishEvents:   true,
	}
}

// EvaluationFlow evaluates predicates and records what users earned.
type EvaluationFlow struct {
	definitions achievement.DefinitionRepository
	ledger      achievement.Ledger
	facts       fact.Source
	registry    *predicate.Registry
	eventBus    shared.EventPublisher
	logger      *zap.Logger
	config      EvaluationFlowConfig
}

// NewEvaluationFlow creates the flow. eventBus may be nil.
func NewEvaluationFlow(
	definitions achievement.DefinitionRepository,
	ledger achievement.Ledger,
	facts fact.Source,
	registry *predicate.Registry,
	eventBus shared.EventPublisher,
	log *zap.Logger,
	config EvaluationFlowConfig,
) *EvaluationFlow {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.DefaultLocation == nil {
		config.DefaultLocation = time.UTC
	}
	return &EvaluationFlow{
		definitions: definitions,
		ledger:      ledger,
		facts:       facts,
		registry:    registry,
		eventBus:    eventBus,
		logger:      logger.OrNop(log).With(logger.Component("evaluation_flow")),
		config:      config,
	}
}

// evaluationRun is the mutable state of one run.
type evaluationRun struct {
	id       string
	scope    Scope
	asOf     time.Time
	codes    []achievement.Code
	snapshot *fact.Snapshot
	earned   achievement.EarnedSet

	mu     sync.Mutex
	result RunResult
}

func (r *evaluationRun) count(evaluated, failed, skipped int) {
	r.mu.Lock()
	r.result.Evaluated += evaluated
	r.result.Failed += failed
	r.result.Skipped += skipped
	r.mu.Unlock()
}

func (r *evaluationRun) award(rec achievement.Record) {
	r.mu.Lock()
	r.result.Earned++
	r.result.Awarded = append(r.result.Awarded, rec)
	r.mu.Unlock()
}

// EvaluateUser runs the given predicates (all active when codes is empty)
// for scope.UserID.
func (f *EvaluationFlow) EvaluateUser(ctx context.Context, scope Scope, asOf time.Time, codes []achievement.Code) (*RunResult, error) {
	runID := uuid.NewString()
	if err := scope.Validate(true); err != nil {
		return nil, &EvaluationFlowError{Step: StepValidate, RunID: runID, Cause: err}
	}
	return f.execute(ctx, runID, scope, []string{scope.UserID}, asOf, codes)
}

// EvaluateOrganization runs the given predicates for every member of the
// scope. The snapshot is loaded once for all members.
func (f *EvaluationFlow) EvaluateOrganization(ctx context.Context, scope Scope, asOf time.Time, codes []achievement.Code) (*RunResult, error) {
	runID := uuid.NewString()
	if err := scope.Validate(false); err != nil {
		return nil, &EvaluationFlowError{Step: StepValidate, RunID: runID, Cause: err}
	}

	members, err := f.facts.Members(ctx, scope.OrganizationID, scope.WorkspaceID)
	if err != nil {
		return nil, &EvaluationFlowError{Step: StepLoadMembers, RunID: runID, Cause: asFactSourceError("Members", err)}
	}
	userIDs := make([]string, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.ID)
	}
	sort.Strings(userIDs)

	result, err := f.execute(ctx, runID, scope, userIDs, asOf, codes)
	if result != nil && f.eventBus != nil && f.config.PublishEvents {
		event := shared.NewSweepCompletedEvent(scope.OrganizationID, result.Users, result.Earned, result.Failed, asOf)
		if pubErr := f.eventBus.Publish(event); pubErr != nil {
			f.logger.Warn("failed to publish sweep event", logger.RunID(runID), zap.Error(pubErr))
		}
	}
	return result, err
}

// Progress evaluates every active predicate for scope.UserID without
// writing to the ledger. Failing predicates are left out.
func (f *EvaluationFlow) Progress(ctx context.Context, scope Scope, asOf time.Time) (map[achievement.Code]predicate.Result, error) {
	if err := scope.Validate(true); err != nil {
		return nil, err
	}
	codes, err := f.selectCodes(ctx, nil)
	if err != nil {
		return nil, err
	}
	snapshot, err := f.loadSnapshot(ctx, scope, []string{scope.UserID}, asOf)
	if err != nil {
		return nil, err
	}

	out := make(map[achievement.Code]predicate.Result, len(codes))
	for _, code := range codes {
		res, err := f.registry.Evaluate(code, scope.UserID, asOf, snapshot)
		if err != nil {
			f.logger.Warn("progress evaluation failed",
				logger.UserID(scope.UserID), logger.Code(string(code)), zap.Error(err))
			continue
		}
		out[code] = res
	}
	return out, nil
}

// execute runs the flow for a fixed user list.
func (f *EvaluationFlow) execute(ctx context.Context, runID string, scope Scope, userIDs []string, asOf time.Time, requested []achievement.Code) (*RunResult, error) {
	run := &evaluationRun{
		id:     runID,
		scope:  scope,
		asOf:   asOf,
		result: RunResult{RunID: runID, StartedAt: time.Now().UTC()},
	}
	log := f.logger.With(logger.RunID(runID), logger.OrganizationID(scope.OrganizationID), logger.EvaluationAt(asOf))

	codes, err := f.selectCodes(ctx, requested)
	if err != nil {
		return nil, &EvaluationFlowError{Step: StepLoadDefinitions, RunID: runID, Cause: err}
	}
	run.codes = codes
	if len(codes) == 0 || len(userIDs) == 0 {
		run.result.FinishedAt = time.Now().UTC()
		return &run.result, nil
	}

	run.snapshot, err = f.loadSnapshot(ctx, scope, userIDs, asOf)
	if err != nil {
		log.Error("fact snapshot unavailable", zap.Error(err))
		return nil, &EvaluationFlowError{Step: StepLoadFacts, RunID: runID, Cause: err}
	}

	run.earned, err = f.ledger.EarnedCodes(ctx, userIDs)
	if err != nil {
		return nil, &EvaluationFlowError{Step: StepLoadLedger, RunID: runID, Cause: err}
	}

	// In-flight users commit even if ctx is cancelled mid-run.
	commitCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(f.config.Concurrency)
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		run.result.Users++
		g.Go(func() error {
			f.evaluateUser(commitCtx, run, userID, log)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(run.result.Awarded, func(i, j int) bool {
		a, b := run.result.Awarded[i], run.result.Awarded[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.Code < b.Code
	})
	run.result.FinishedAt = time.Now().UTC()

	f.publishEarned(run, log)

	log.Info("evaluation run finished",
		zap.Int("users", run.result.Users),
		zap.Int("evaluated", run.result.Evaluated),
		zap.Int("earned", run.result.Earned),
		zap.Int("failed", run.result.Failed),
		zap.Int("skipped", run.result.Skipped),
		logger.Latency(run.result.FinishedAt.Sub(run.result.StartedAt)),
	)

	if err := ctx.Err(); err != nil {
		return &run.result, &EvaluationFlowError{Step: StepEvaluate, RunID: runID, Cause: err}
	}
	return &run.result, nil
}

// evaluateUser evaluates every selected code for one user and commits
// what was achieved.
func (f *EvaluationFlow) evaluateUser(ctx context.Context, run *evaluationRun, userID string, log *zap.Logger) {
	var evaluated, failed, skipped int
	defer func() { run.count(evaluated, failed, skipped) }()

	for _, code := range run.codes {
		if run.earned.Has(userID, code) {
			skipped++
			continue
		}

		res, err := f.registry.Evaluate(code, userID, run.asOf, run.snapshot)
		if err != nil {
			failed++
			log.Warn("predicate evaluation failed",
				logger.UserID(userID), logger.Code(string(code)), zap.Error(err))
			continue
		}
		evaluated++
		if !res.Achieved {
			continue
		}

		inserted, err := f.commit(ctx, userID, code, run.asOf)
		if err != nil {
			failed++
			log.Error("ledger insert failed",
				logger.UserID(userID), logger.Code(string(code)), zap.Error(err))
			continue
		}
		if inserted {
			run.award(achievement.Record{UserID: userID, Code: code, EarnedAt: run.asOf})
		}
	}
}

func (f *EvaluationFlow) commit(ctx context.Context, userID string, code achievement.Code, earnedAt time.Time) (bool, error) {
	if f.config.CommitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.CommitTimeout)
		defer cancel()
	}
	return f.ledger.Create(ctx, userID, code, earnedAt)
}

// selectCodes returns the requested codes that are active and have a
// predicate; all such codes when none are requested.
func (f *EvaluationFlow) selectCodes(ctx context.Context, requested []achievement.Code) ([]achievement.Code, error) {
	defs, err := f.definitions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions: %w", err)
	}
	active := make(map[achievement.Code]bool, len(defs))
	for _, d := range defs {
		if !d.Active {
			continue
		}
		if _, ok := f.registry.Get(d.Code); !ok {
			f.logger.Warn("active definition has no predicate", logger.Code(string(d.Code)))
			continue
		}
		active[d.Code] = true
	}

	var codes []achievement.Code
	if len(requested) == 0 {
		for code := range active {
			codes = append(codes, code)
		}
	} else {
		seen := make(map[achievement.Code]bool, len(requested))
		for _, code := range requested {
			if active[code] && !seen[code] {
				seen[code] = true
				codes = append(codes, code)
			}
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes, nil
}

func (f *EvaluationFlow) loadSnapshot(ctx context.Context, scope Scope, userIDs []string, asOf time.Time) (*fact.Snapshot, error) {
	loc := scope.Location
	if loc == nil {
		loc = f.config.DefaultLocation
	}
	if f.config.FactTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.config.FactTimeout)
		defer cancel()
	}

	snapshot, err := f.facts.Snapshot(ctx, fact.SnapshotQuery{
		OrganizationID: scope.OrganizationID,
		UserIDs:        userIDs,
		AsOf:           asOf,
		Location:       loc,
	})
	if err != nil {
		return nil, asFactSourceError("Snapshot", err)
	}
	return snapshot, nil
}

// publishEarned emits one event per inserted record.
func (f *EvaluationFlow) publishEarned(run *evaluationRun, log *zap.Logger) {
	if f.eventBus == nil || !f.config.PublishEvents {
		return
	}
	for _, rec := range run.result.Awarded {
		event := shared.NewAchievementEarnedEvent(rec.UserID, string(rec.Code), run.id, rec.EarnedAt)
		if err := f.eventBus.Publish(event); err != nil {
			log.Warn("failed to publish achievement event",
				logger.UserID(rec.UserID), logger.Code(string(rec.Code)), zap.Error(err))
		}
	}
}

func asFactSourceError(op string, err error) error {
	if errors.Is(err, shared.ErrFactSourceUnavailable) {
		return err
	}
	return shared.FactSourceError(op, err)
}
