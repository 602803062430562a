package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/acme/emergency-call-relay/internal/domain"
)

// CallEventMessage is the wire form of a finished relay attempt.
type CallEventMessage struct {
	EventID    uuid.UUID `json:"event_id"`
	Type       string    `json:"type"`
	To         string    `json:"to"`
	From       string    `json:"from"`
	CallSID    string    `json:"sid,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Event types.
const (
	EventCallPlaced = "call.placed"
	EventCallFailed = "call.failed"
)

// NewCallEventMessage converts a domain event into its wire form.
func NewCallEventMessage(ev domain.CallEvent) CallEventMessage {
	typ := EventCallPlaced
	if ev.Outcome != domain.CallOutcomePlaced {
		typ = EventCallFailed
	}
	return CallEventMessage{
		EventID:    ev.ID,
		Type:       typ,
		To:         ev.To,
		From:       ev.From,
		CallSID:    ev.CallID,
		Error:      ev.Error,
		DurationMs: ev.Duration.Milliseconds(),
		OccurredAt: ev.OccurredAt,
	}
}
