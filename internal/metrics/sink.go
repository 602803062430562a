package metrics

import "time"

// Sink records relay metrics. Implementations must not block or return errors.
type Sink interface {
	// ProviderCallCompleted records one provider invocation and its outcome.
	ProviderCallCompleted(outcome string, duration time.Duration)
	// RequestRejected records a request that never reached the provider.
	RequestRejected(reason string)
}

// Outcome labels.
const (
	OutcomePlaced = "placed"
	OutcomeFailed = "failed"
)

// Rejection reasons.
const (
	ReasonInvalidRequest = "invalid_request"
	ReasonMisconfigured  = "misconfigured"
	ReasonDuplicate      = "duplicate"
)
