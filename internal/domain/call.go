package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboundCallRequest asks the relay to ring a single number.
type OutboundCallRequest struct {
	To string
	// IdempotencyKey is optional; empty means no duplicate protection.
	IdempotencyKey string
}

// OutboundCallResult is returned synchronously to the caller and never persisted.
type OutboundCallResult struct {
	Success      bool
	CallID       string
	ErrorMessage string
}

// CallOutcome enumerates the two externally visible outcomes of a relay request.
type CallOutcome string

const (
	CallOutcomePlaced CallOutcome = "placed"
	CallOutcomeFailed CallOutcome = "failed"
)

// CallEvent records a finished relay attempt for downstream consumers.
type CallEvent struct {
	ID         uuid.UUID
	Outcome    CallOutcome
	To         string
	From       string
	CallID     string
	Error      string
	Duration   time.Duration
	OccurredAt time.Time
}
