// Package shared contains common domain types, errors and events
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")

	// External dependency errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// Engine error kinds.
var (
	// ErrFactSourceUnavailable is transient: the whole run fails and the
	// scheduling layer retries it with backoff.
	ErrFactSourceUnavailable = errors.New("fact source unavailable")

	// ErrPredicateEvaluation is isolated to one (predicate, user) pair.
	ErrPredicateEvaluation = errors.New("predicate evaluation failed")

	// ErrDuplicateLedgerInsert is absorbed by ledger adapters and never
	// surfaced to callers.
	ErrDuplicateLedgerInsert = errors.New("achievement already recorded")

	// ErrRankingComputation degrades to the last known ranking.
	ErrRankingComputation = errors.New("ranking computation failed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "achievement", "ledger", "leaderboard"
	Op      string // Operation that failed, e.g., "Create", "Evaluate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Achievement domain errors
var (
	ErrDefinitionNotFound = NewDomainError("achievement", "Find", ErrNotFound, "achievement definition not found")
	ErrInvalidCode        = NewDomainError("achievement", "Validate", ErrInvalidInput, "invalid achievement code")
	ErrInvalidDifficulty  = NewDomainError("achievement", "Validate", ErrValueOutOfRange, "invalid difficulty")
	ErrRecordNotFound     = NewDomainError("ledger", "Find", ErrNotFound, "achievement record not found")
)

// Evaluation errors
var (
	ErrUnknownPredicate = NewDomainError("predicate", "Lookup", ErrNotFound, "no predicate registered for code")
	ErrInvalidScope     = NewDomainError("evaluation", "Validate", ErrInvalidInput, "invalid evaluation scope")
	ErrInvalidTimezone  = NewDomainError("evaluation", "Validate", ErrInvalidInput, "invalid timezone")
)

// Leaderboard domain errors
var (
	ErrInvalidRankingKind = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid ranking kind")
	ErrLeaderboardStale   = NewDomainError("leaderboard", "Refresh", ErrExpired, "leaderboard data is stale")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrFactSourceUnavailable) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// FactSourceError wraps a fact source failure so callers can match it with
// errors.Is(err, ErrFactSourceUnavailable) while keeping the cause.
func FactSourceError(op string, err error) error {
	return WrapError("facts", op, ErrFactSourceUnavailable, "fact source query failed", err)
}
