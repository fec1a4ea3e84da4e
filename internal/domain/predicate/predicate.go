// Package predicate holds the achievement rule library. Every rule is a pure
// function over a fact.View: no I/O, no clock, no shared state. A Registry maps
// achievement codes to rules; enabling or disabling a rule is a data toggle on
// the definition, never a code change.
package predicate

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/achievement"
	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

// Result is the outcome of one evaluation.
type Result struct {
	Achieved  bool
	Progress  int
	Threshold int
}

// atLeast builds the uniform ">= threshold" result.
func atLeast(progress, threshold int) Result {
	return Result{Achieved: progress >= threshold, Progress: progress, Threshold: threshold}
}

// Predicate decides whether a user qualified as of asOf.
type Predicate interface {
	Evaluate(userID string, asOf time.Time, view fact.View) (Result, error)
}

// Func adapts a function to Predicate.
type Func func(userID string, asOf time.Time, view fact.View) (Result, error)

// Evaluate implements Predicate.
func (f Func) Evaluate(userID string, asOf time.Time, view fact.View) (Result, error) {
	return f(userID, asOf, view)
}

// Entry binds a predicate to its code and triggering actions.
type Entry struct {
	Code      achievement.Code
	Predicate Predicate

	// Triggers are the actions after which the predicate may flip to achieved.
	Triggers []fact.ActionType

	// SweepOnly predicates depend on elapsed time; no event can trigger them.
	SweepOnly bool
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Registry maps codes to predicates. Safe for concurrent reads after setup.
type Registry struct {
	mu       sync.RWMutex
	entries  map[achievement.Code]Entry
	byAction map[fact.ActionType][]achievement.Code
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[achievement.Code]Entry),
		byAction: make(map[fact.ActionType][]achievement.Code),
	}
}

// Register adds an entry. Codes can be registered once.
func (r *Registry) Register(e Entry) error {
	if err := e.Code.Validate(); err != nil {
		return err
	}
	if e.Predicate == nil {
		return fmt.Errorf("predicate: %s has no predicate", e.Code)
	}
	if e.SweepOnly && len(e.Triggers) > 0 {
		return fmt.Errorf("predicate: %s is sweep-only but has triggers", e.Code)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.Code]; exists {
		return fmt.Errorf("predicate: %s already registered", e.Code)
	}
	r.entries[e.Code] = e
	for _, action := range e.Triggers {
		r.byAction[action] = append(r.byAction[action], e.Code)
	}
	return nil
}

// MustRegister is Register that panics; for static wiring.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Get returns the entry for code.
func (r *Registry) Get(code achievement.Code) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[code]
	return e, ok
}

// Codes returns every registered code in ascending order.
func (r *Registry) Codes() []achievement.Code {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]achievement.Code, 0, len(r.entries))
	for code := range r.entries {
		codes = append(codes, code)
	}
	sortCodes(codes)
	return codes
}

// TriggeredBy returns the codes an action may affect, in ascending order.
func (r *Registry) TriggeredBy(action fact.ActionType) []achievement.Code {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := append([]achievement.Code(nil), r.byAction[action]...)
	sortCodes(codes)
	return codes
}

// Evaluate runs one predicate. A panic inside the predicate is converted into
// an error wrapping shared.ErrPredicateEvaluation so one bad rule cannot take
// down a run.
func (r *Registry) Evaluate(code achievement.Code, userID string, asOf time.Time, view fact.View) (res Result, err error) {
	e, ok := r.Get(code)
	if !ok {
		return Result{}, shared.ErrUnknownPredicate
	}

	defer func() {
		if p := recover(); p != nil {
			res = Result{}
			err = shared.WrapError("predicate", string(code), shared.ErrPredicateEvaluation, "predicate panicked", fmt.Errorf("%v", p))
		}
	}()

	res, err = e.Predicate.Evaluate(userID, asOf, view)
	if err != nil {
		return Result{}, shared.WrapError("predicate", string(code), shared.ErrPredicateEvaluation, "predicate failed", err)
	}
	return res, nil
}

func sortCodes(codes []achievement.Code) {
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
}
