// Package fact models the read-only task, activity and user facts the engine
// evaluates. The surrounding application owns and writes these records.
package fact

import "time"

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ActionType names what a user did to an item.
type ActionType string

const (
	ActionCreated         ActionType = "created"
	ActionAssigned        ActionType = "assigned"
	ActionTaskCompleted   ActionType = "task_completed"
	ActionTaskReopened    ActionType = "task_reopened"
	ActionTaskDiscarded   ActionType = "task_discarded"
	ActionDueDateChanged  ActionType = "due_date_changed"
	ActionCommentAdded    ActionType = "comment_added"
	ActionAttachmentAdded ActionType = "attachment_added"
	ActionRelationAdded   ActionType = "relation_added"
)

// Visibility controls whether a user appears in rankings.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Task is a task record as of the snapshot instant.
type Task struct {
	ID             string
	OrganizationID string
	WorkspaceID    string
	ItemID         string
	AssigneeID     string
	CreatorID      string
	Priority       Priority

	// Effort in hours. Zero estimated means "not estimated".
	EstimatedEffort float64
	ActualEffort    float64

	StartAt     *time.Time
	DueAt       *time.Time
	CreatedAt   time.Time
	CompletedAt *time.Time

	Completed bool
	Discarded bool
}

// IsDone reports a completion that counts: completed, not discarded, with a
// completion timestamp.
func (t *Task) IsDone() bool {
	return t.Completed && !t.Discarded && t.CompletedAt != nil
}

// IsOpen reports a task that still needs work.
func (t *Task) IsOpen() bool {
	return !t.Completed && !t.Discarded
}

// IsOnTime reports a completion at or before the due date. Tasks without a
// due date are never on time.
func (t *Task) IsOnTime() bool {
	return t.IsDone() && t.DueAt != nil && !t.CompletedAt.After(*t.DueAt)
}

// Activity is one entry of an item's history.
type Activity struct {
	ID             string
	OrganizationID string
	WorkspaceID    string
	ItemID         string
	UserID         string
	Action         ActionType
	At             time.Time
}

// User carries the user attributes predicates and rankings read.
type User struct {
	ID             string
	OrganizationID string
	WorkspaceIDs   []string
	CreatedAt      time.Time
	Visibility     Visibility
}

// IsPrivate reports whether the user opted out of rankings.
func (u *User) IsPrivate() bool {
	return u.Visibility == VisibilityPrivate
}

// InWorkspace reports membership.
func (u *User) InWorkspace(workspaceID string) bool {
	for _, id := range u.WorkspaceIDs {
		if id == workspaceID {
			return true
		}
	}
	return false
}
