package telephony

import (
	"context"
	"errors"
)

// CallRequest is what a provider needs to ring a number.
type CallRequest struct {
	To   string
	From string
	// Announcement is the markup spoken when the callee answers.
	Announcement string
}

// Result captures the outcome of a telephony attempt.
type Result struct {
	CallID string
}

// Provider abstracts the telephony integration. Implementations place at most
// one call per invocation and never retry on their own.
type Provider interface {
	PlaceCall(ctx context.Context, req CallRequest) (Result, error)
}

// Error is a failure reported by the provider itself, as opposed to a
// transport failure on the way there.
type Error struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// Message extracts the provider's own error message when err carries one,
// falling back to err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var perr *Error
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	return err.Error()
}
