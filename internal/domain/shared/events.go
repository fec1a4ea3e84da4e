package shared

import (
	"fmt"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Event types exchanged between the surrounding application and the engine.
const (
	// EventFactRecorded is published by the application whenever a task or
	// activity fact is written. It drives incremental evaluation.
	EventFactRecorded EventType = "facts.recorded"

	// EventAchievementEarned is emitted once per newly inserted ledger record.
	EventAchievementEarned EventType = "achievement.earned"

	// EventSweepCompleted is emitted after a full organization sweep.
	EventSweepCompleted EventType = "system.sweep_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with at.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Fact Events
// ═══════════════════════════════════════════════════════════════════════════

// FactRecordedEvent is emitted by the application when a user acts on an item.
// AggregateID is the acting user.
type FactRecordedEvent struct {
	BaseEvent
	OrganizationID string `json:"organization_id"`
	WorkspaceID    string `json:"workspace_id"`
	ItemID         string `json:"item_id"`
	UserID         string `json:"user_id"`
	ActionType     string `json:"action_type"`
	Timezone       string `json:"timezone,omitempty"`
}

// Payload implements Event interface.
func (e FactRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"organization_id": e.OrganizationID,
		"workspace_id":    e.WorkspaceID,
		"item_id":         e.ItemID,
		"user_id":         e.UserID,
		"action_type":     e.ActionType,
		"timezone":        e.Timezone,
	}
}

// NewFactRecordedEvent creates a new FactRecordedEvent.
func NewFactRecordedEvent(orgID, workspaceID, itemID, userID, actionType string, at time.Time) FactRecordedEvent {
	return FactRecordedEvent{
		BaseEvent:      NewBaseEvent(EventFactRecorded, userID, at),
		OrganizationID: orgID,
		WorkspaceID:    workspaceID,
		ItemID:         itemID,
		UserID:         userID,
		ActionType:     actionType,
	}
}

// AsFactRecorded recovers a FactRecordedEvent from either the typed event or a
// payload-only event reconstructed from transport.
func AsFactRecorded(event Event) (FactRecordedEvent, error) {
	switch e := event.(type) {
	case FactRecordedEvent:
		return e, e.validate()
	case *FactRecordedEvent:
		return *e, e.validate()
	}
	if event.EventType() != EventFactRecorded {
		return FactRecordedEvent{}, fmt.Errorf("unexpected event type %q", event.EventType())
	}

	p := event.Payload()
	str := func(key string) string {
		v, _ := p[key].(string)
		return v
	}
	out := FactRecordedEvent{
		BaseEvent:      NewBaseEvent(EventFactRecorded, event.AggregateID(), event.OccurredAt()),
		OrganizationID: str("organization_id"),
		WorkspaceID:    str("workspace_id"),
		ItemID:         str("item_id"),
		UserID:         str("user_id"),
		ActionType:     str("action_type"),
		Timezone:       str("timezone"),
	}
	if out.UserID == "" {
		out.UserID = event.AggregateID()
	}
	if err := out.validate(); err != nil {
		return FactRecordedEvent{}, err
	}
	return out, nil
}

func (e FactRecordedEvent) validate() error {
	if e.UserID == "" || e.OrganizationID == "" || e.ActionType == "" {
		return NewDomainError("facts", "Decode", ErrInvalidInput, "fact event misses user, organization or action")
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementEarnedEvent is emitted after a ledger insert succeeded.
type AchievementEarnedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	AchievementCode string `json:"achievement_code"`
	RunID           string `json:"run_id"`
}

// Payload implements Event interface.
func (e AchievementEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"achievement_code": e.AchievementCode,
		"run_id":           e.RunID,
	}
}

// NewAchievementEarnedEvent creates a new AchievementEarnedEvent.
func NewAchievementEarnedEvent(userID, code, runID string, earnedAt time.Time) AchievementEarnedEvent {
	return AchievementEarnedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementEarned, userID, earnedAt),
		UserID:          userID,
		AchievementCode: code,
		RunID:           runID,
	}
}

// SweepCompletedEvent is emitted after an organization sweep finishes.
type SweepCompletedEvent struct {
	BaseEvent
	OrganizationID string `json:"organization_id"`
	Users          int    `json:"users"`
	Earned         int    `json:"earned"`
	Failed         int    `json:"failed"`
}

// Payload implements Event interface.
func (e SweepCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"organization_id": e.OrganizationID,
		"users":           e.Users,
		"earned":          e.Earned,
		"failed":          e.Failed,
	}
}

// NewSweepCompletedEvent creates a new SweepCompletedEvent.
func NewSweepCompletedEvent(orgID string, users, earned, failed int, at time.Time) SweepCompletedEvent {
	return SweepCompletedEvent{
		BaseEvent:      NewBaseEvent(EventSweepCompleted, orgID, at),
		OrganizationID: orgID,
		Users:          users,
		Earned:         earned,
		Failed:         failed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
