// Package facts decorates a fact.Source with a circuit breaker so a database
// outage fails evaluation runs fast instead of piling up query timeouts.
package facts

import (
	"context"

	"go.uber.org/zap"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
	"github.com/alem-hub/achievement-engine/pkg/circuitbreaker"
	"github.com/alem-hub/achievement-engine/pkg/logger"
)

var _ fact.Source = (*GuardedSource)(nil)

// GuardedSource forwards to the wrapped source while the breaker is closed.
// Only fact source outages count as failures; a rejected call is itself
// reported as an outage so callers keep retrying with backoff.
type GuardedSource struct {
	inner   fact.Source
	breaker *circuitbreaker.CircuitBreaker
}

// NewGuardedSource wraps inner with the default fact source breaker.
func NewGuardedSource(inner fact.Source, log *zap.Logger) *GuardedSource {
	log = logger.OrNop(log).With(logger.Component("fact_source_breaker"))
	breaker := circuitbreaker.FactSourceBreaker(
		func(err error) bool { return shared.IsRetryable(err) },
		func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	)
	return NewGuardedSourceWithBreaker(inner, breaker)
}

// NewGuardedSourceWithBreaker wraps inner with a caller-supplied breaker.
func NewGuardedSourceWithBreaker(inner fact.Source, breaker *circuitbreaker.CircuitBreaker) *GuardedSource {
	return &GuardedSource{inner: inner, breaker: breaker}
}

// Breaker exposes the breaker for health reporting.
func (g *GuardedSource) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}

// Snapshot implements fact.Source.
func (g *GuardedSource) Snapshot(ctx context.Context, q fact.SnapshotQuery) (*fact.Snapshot, error) {
	var snap *fact.Snapshot
	err := g.execute(ctx, "Snapshot", func(ctx context.Context) error {
		var err error
		snap, err = g.inner.Snapshot(ctx, q)
		return err
	})
	return snap, err
}

// Members implements fact.Source.
func (g *GuardedSource) Members(ctx context.Context, organizationID, workspaceID string) ([]fact.User, error) {
	var users []fact.User
	err := g.execute(ctx, "Members", func(ctx context.Context) error {
		var err error
		users, err = g.inner.Members(ctx, organizationID, workspaceID)
		return err
	})
	return users, err
}

// Organizations implements fact.Source.
func (g *GuardedSource) Organizations(ctx context.Context) ([]string, error) {
	var orgs []string
	err := g.execute(ctx, "Organizations", func(ctx context.Context) error {
		var err error
		orgs, err = g.inner.Organizations(ctx)
		return err
	})
	return orgs, err
}

func (g *GuardedSource) execute(ctx context.Context, op string, fn func(context.Context) error) error {
	err := g.breaker.Execute(ctx, fn)
	if circuitbreaker.IsRejection(err) {
		return shared.FactSourceError(op, err)
	}
	return err
}
