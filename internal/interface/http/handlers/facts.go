package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/achievement-engine/internal/domain/fact"
	"github.com/alem-hub/achievement-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FACT WEBHOOK
// Hosts that cannot reach redis post their FactRecorded events over HTTP.
// The event goes to the same bus the redis subscriber feeds.
// ══════════════════════════════════════════════════════════════════════════════

// ErrInvalidFact is returned for payloads that cannot become a FactRecorded event.
var ErrInvalidFact = errors.New("invalid fact payload")

// FactPayload is the JSON body of a recorded fact.
type FactPayload struct {
	OrganizationID string     `json:"organization_id"`
	WorkspaceID    string     `json:"workspace_id,omitempty"`
	ItemID         string     `json:"item_id,omitempty"`
	UserID         string     `json:"user_id"`
	ActionType     string     `json:"action_type"`
	Timezone       string     `json:"timezone,omitempty"`
	OccurredAt     *time.Time `json:"occurred_at,omitempty"`
}

// knownActions lists the action types the predicate library reacts to.
var knownActions = map[fact.ActionType]bool{
	fact.ActionCreated:         true,
	fact.ActionAssigned:        true,
	fact.ActionTaskCompleted:   true,
	fact.ActionTaskReopened:    true,
	fact.ActionTaskDiscarded:   true,
	fact.ActionDueDateChanged:  true,
	fact.ActionCommentAdded:    true,
	fact.ActionAttachmentAdded: true,
	fact.ActionRelationAdded:   true,
}

// FactWebhook publishes decoded facts on the event bus.
type FactWebhook struct {
	bus shared.EventPublisher
	now func() time.Time
}

// NewFactWebhook creates a webhook publishing to bus.
func NewFactWebhook(bus shared.EventPublisher) *FactWebhook {
	return &FactWebhook{
		bus: bus,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// HandleFact decodes payload and publishes it. Returns the published event.
func (h *FactWebhook) HandleFact(_ context.Context, payload []byte) (shared.FactRecordedEvent, error) {
	var p FactPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return shared.FactRecordedEvent{}, fmt.Errorf("%w: %v", ErrInvalidFact, err)
	}
	event, err := h.toEvent(p)
	if err != nil {
		return shared.FactRecordedEvent{}, err
	}
	if err := h.bus.Publish(event); err != nil {
		return shared.FactRecordedEvent{}, fmt.Errorf("publish fact: %w", err)
	}
	return event, nil
}

func (h *FactWebhook) toEvent(p FactPayload) (shared.FactRecordedEvent, error) {
	if p.OrganizationID == "" || p.UserID == "" {
		return shared.FactRecordedEvent{}, fmt.Errorf("%w: organization_id and user_id are required", ErrInvalidFact)
	}
	if !knownActions[fact.ActionType(p.ActionType)] {
		return shared.FactRecordedEvent{}, fmt.Errorf("%w: unknown action_type %q", ErrInvalidFact, p.ActionType)
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return shared.FactRecordedEvent{}, fmt.Errorf("%w: unknown timezone %q", ErrInvalidFact, p.Timezone)
		}
	}

	at := h.now()
	if p.OccurredAt != nil && !p.OccurredAt.IsZero() {
		at = p.OccurredAt.UTC()
	}
	event := shared.NewFactRecordedEvent(p.OrganizationID, p.WorkspaceID, p.ItemID, p.UserID, p.ActionType, at)
	event.Timezone = p.Timezone
	return event, nil
}
