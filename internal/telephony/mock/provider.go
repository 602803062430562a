package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/emergency-call-relay/internal/telephony"
)

// RespondFunc decides the outcome of a simulated call.
type RespondFunc func(ctx context.Context, req telephony.CallRequest) (telephony.Result, error)

// Provider simulates outbound call placement and records every request it sees.
type Provider struct {
	latency time.Duration
	respond RespondFunc

	mu    sync.Mutex
	calls []telephony.CallRequest
}

// NewProvider constructs a mock provider that always succeeds after latency.
func NewProvider(latency time.Duration) *Provider {
	return &Provider{latency: latency, respond: succeed}
}

// NewScripted constructs a mock provider whose outcome is decided by fn.
func NewScripted(fn RespondFunc) *Provider {
	return &Provider{respond: fn}
}

// PlaceCall simulates a call attempt.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if p.latency > 0 {
		select {
		case <-ctx.Done():
			return telephony.Result{}, ctx.Err()
		case <-time.After(p.latency):
		}
	}

	return p.respond(ctx, req)
}

// Calls returns a copy of the requests received so far.
func (p *Provider) Calls() []telephony.CallRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]telephony.CallRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount reports how many times PlaceCall ran.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func succeed(context.Context, telephony.CallRequest) (telephony.Result, error) {
	return telephony.Result{CallID: "CA" + strings.ReplaceAll(uuid.NewString(), "-", "")}, nil
}
