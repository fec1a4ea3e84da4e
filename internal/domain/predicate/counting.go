package predicate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
)

// ══════════════════════════════════════════════════════════════════════════════
// COUNTING
// ══════════════════════════════════════════════════════════════════════════════

// CompletedCount counts the user's completions.
func CompletedCount(threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		return atLeast(len(view.CompletedBy(userID)), threshold), nil
	}
}

// CompletedWithPriority counts completions of tasks with the given priority.
func CompletedWithPriority(priority fact.Priority, threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if t.Priority == priority {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// ActionCount counts activities of one type performed by the user.
func ActionCount(action fact.ActionType, threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, a := range view.ActivitiesBy(userID) {
			if a.Action == action {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// CompletedWithAttachment counts completions on items that carry at least one
// AttachmentAdded activity.
func CompletedWithAttachment(threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if hasAction(view.ItemActivities(t.ItemID), fact.ActionAttachmentAdded) {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// CreatedCount counts tasks the user created.
func CreatedCount(threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		return atLeast(len(view.CreatedBy(userID)), threshold), nil
	}
}

// DistinctWorkspaces counts workspaces in which the user completed a task.
func DistinctWorkspaces(threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		seen := make(map[string]struct{})
		for _, t := range view.CompletedBy(userID) {
			if t.WorkspaceID != "" {
				seen[t.WorkspaceID] = struct{}{}
			}
		}
		return atLeast(len(seen), threshold), nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RATIO / TOLERANCE
// ══════════════════════════════════════════════════════════════════════════════

// WithinEstimate counts completions where |estimated - actual| / estimated is at
// most tolerance. Unestimated tasks are skipped. The comparison runs on
// decimals so a 10.0 -> 11.0 task sits exactly on the 10% boundary.
func WithinEstimate(tolerance decimal.Decimal, threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if t.EstimatedEffort <= 0 || t.ActualEffort < 0 {
				continue
			}
			estimated := decimal.NewFromFloat(t.EstimatedEffort)
			diff := decimal.NewFromFloat(t.ActualEffort).Sub(estimated).Abs()
			if diff.LessThanOrEqual(estimated.Mul(tolerance)) {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

func hasAction(history []fact.Activity, action fact.ActionType) bool {
	for _, a := range history {
		if a.Action == action {
			return true
		}
	}
	return false
}

// hasActionBefore reports an action strictly earlier than at.
func hasActionBefore(history []fact.Activity, action fact.ActionType, at time.Time) bool {
	for _, a := range history {
		if !a.At.Before(at) {
			return false
		}
		if a.Action == action {
			return true
		}
	}
	return false
}
