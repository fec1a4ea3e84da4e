package predicate

import (
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
)

// ══════════════════════════════════════════════════════════════════════════════
// RELATIONAL
// ══════════════════════════════════════════════════════════════════════════════

// CompletedOthersTasks counts completions of tasks someone else created.
func CompletedOthersTasks(threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if t.CreatorID != "" && t.CreatorID != userID {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// DelegatedTasks counts tasks the user created with a different assignee.
func DelegatedTasks(threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CreatedBy(userID) {
			if t.AssigneeID != "" && t.AssigneeID != userID {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// CompletedWithoutPriorAction counts completions whose item has no activity of
// the given type before the completion.
func CompletedWithoutPriorAction(action fact.ActionType, threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if !hasActionBefore(view.ItemActivities(t.ItemID), action, *t.CompletedAt) {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// CompletedNeverReopened counts completions whose item has no TaskReopened
// activity at all.
func CompletedNeverReopened(threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if !hasAction(view.ItemActivities(t.ItemID), fact.ActionTaskReopened) {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}

// CompletedAfterReopen counts completions that came after a reopen of the
// same item.
func CompletedAfterReopen(threshold int) Func {
	return func(userID string, _ time.Time, view fact.View) (Result, error) {
		n := 0
		for _, t := range view.CompletedBy(userID) {
			if hasActionBefore(view.ItemActivities(t.ItemID), fact.ActionTaskReopened, *t.CompletedAt) {
				n++
			}
		}
		return atLeast(n, threshold), nil
	}
}
