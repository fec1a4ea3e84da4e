package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/achievement-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECKS
// Critical checks gate readiness. Degraded checks only mark the service
// unhealthy: with redis or the fact source down the collection and
// notification endpoints still answer from the ledger.
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker defines the interface for health checking.
type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
	AddCheck(name string, check HealthCheckFunc)
	RemoveCheck(name string)
}

// HealthCheckFunc performs a single check and returns an error when it fails.
type HealthCheckFunc func(ctx context.Context) error

// Service states reported in HealthStatus.State.
const (
	StateUp       = "up"
	StateDegraded = "degraded"
	StateDown     = "down"
)

// HealthStatus is the aggregated result of all checks.
type HealthStatus struct {
	State     string                 `json:"state"`
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

type registeredCheck struct {
	fn       HealthCheckFunc
	critical bool
}

// CompositeHealthChecker runs named checks in parallel.
type CompositeHealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]registeredCheck
	startTime time.Time
	version   string
	timeout   time.Duration
}

// NewCompositeHealthChecker creates a checker with a 5s per-check timeout.
func NewCompositeHealthChecker(version string) *CompositeHealthChecker {
	return &CompositeHealthChecker{
		checks:    make(map[string]registeredCheck),
		startTime: time.Now(),
		version:   version,
		timeout:   5 * time.Second,
	}
}

// SetTimeout sets the timeout for individual checks.
func (c *CompositeHealthChecker) SetTimeout(timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = timeout
}

// AddCheck registers a critical check. A failing critical check makes the
// service not ready.
func (c *CompositeHealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.add(name, check, true)
}

// AddDegradedCheck registers a check whose failure leaves the service ready.
func (c *CompositeHealthChecker) AddDegradedCheck(name string, check HealthCheckFunc) {
	c.add(name, check, false)
}

func (c *CompositeHealthChecker) add(name string, check HealthCheckFunc, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registeredCheck{fn: check, critical: critical}
}

// RemoveCheck removes a named check.
func (c *CompositeHealthChecker) RemoveCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// Check runs every registered check and aggregates the results.
func (c *CompositeHealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]registeredCheck, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	timeout := c.timeout
	c.mu.RUnlock()

	status := HealthStatus{
		State:     StateUp,
		Healthy:   true,
		Ready:     true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   c.version,
	}
	if len(checks) == 0 {
		status.Message = "No health checks registered"
		return status
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for name, check := range checks {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := check.fn(checkCtx)
			result := CheckResult{
				Healthy:  err == nil,
				Critical: check.critical,
				Message:  "OK",
				Duration: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				result.Message = err.Error()
			}

			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for name, result := range status.Checks {
		if result.Healthy {
			continue
		}
		failed = append(failed, name)
		status.Healthy = false
		if result.Critical {
			status.Ready = false
		}
	}

	switch {
	case !status.Ready:
		status.State = StateDown
	case !status.Healthy:
		status.State = StateDegraded
	}
	if len(failed) == 0 {
		status.Message = "All checks passed"
	} else {
		sort.Strings(failed)
		status.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return status
}

// Pinger is anything that can check its connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewDatabaseCheck pings the postgres pool.
func NewDatabaseCheck(db Pinger) HealthCheckFunc {
	return db.Ping
}

// NewCacheCheck pings redis.
func NewCacheCheck(cache Pinger) HealthCheckFunc {
	return cache.Ping
}

// BreakerState reports a circuit breaker's state.
type BreakerState interface {
	State() circuitbreaker.State
	Name() string
}

// NewBreakerCheck fails while the breaker is open.
func NewBreakerCheck(cb BreakerState) HealthCheckFunc {
	return func(context.Context) error {
		if cb.State() == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit %s is open", cb.Name())
		}
		return nil
	}
}

// NoopHealthChecker always reports up.
type NoopHealthChecker struct {
	startTime time.Time
}

// NewNoopHealthChecker creates a new noop health checker.
func NewNoopHealthChecker() *NoopHealthChecker {
	return &NoopHealthChecker{startTime: time.Now()}
}

// Check always returns a healthy status.
func (n *NoopHealthChecker) Check(context.Context) HealthStatus {
	return HealthStatus{
		State:     StateUp,
		Healthy:   true,
		Ready:     true,
		Message:   "OK",
		Uptime:    time.Since(n.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

// AddCheck is a no-op.
func (n *NoopHealthChecker) AddCheck(string, HealthCheckFunc) {}

// RemoveCheck is a no-op.
func (n *NoopHealthChecker) RemoveCheck(string) {}
