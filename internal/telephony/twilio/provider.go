package twilio

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/acme/emergency-call-relay/internal/config"
	"github.com/acme/emergency-call-relay/internal/telephony"
)

const defaultTimeout = 10 * time.Second

// Provider places voice calls through the Twilio REST API.
// It is immutable after construction and safe for concurrent use.
type Provider struct {
	accountID string
	apiKey    string
	apiSecret string
	timeout   time.Duration
	transport http.RoundTripper
}

// Option customises a Provider.
type Option func(*Provider)

// WithTransport overrides the HTTP transport used to reach Twilio.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Provider) { p.transport = rt }
}

// NewProvider binds a provider to the given credentials.
func NewProvider(creds config.ProviderCredentials, cfg config.CallBridgeConfig, opts ...Option) (*Provider, error) {
	if !creds.Complete() {
		return nil, fmt.Errorf("twilio: incomplete credentials, missing %v", creds.Missing())
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	p := &Provider{
		accountID: creds.AccountID,
		apiKey:    creds.APIKey,
		apiSecret: creds.APISecret,
		timeout:   timeout,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PlaceCall issues a single create-call request. Twilio failures come back as
// *telephony.Error so the caller can surface Twilio's own message.
func (p *Provider) PlaceCall(ctx context.Context, req telephony.CallRequest) (telephony.Result, error) {
	if err := ctx.Err(); err != nil {
		return telephony.Result{}, fmt.Errorf("twilio: create call: %w", err)
	}

	// The transport swaps in this context, so it must carry the provider's own deadline.
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &openapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetTwiml(req.Announcement)

	call, err := p.api(ctx).CreateCall(params)
	if err != nil {
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) {
			return telephony.Result{}, fmt.Errorf("twilio: create call: %w", &telephony.Error{
				StatusCode: restErr.Status,
				Code:       restErr.Code,
				Message:    restErr.Message,
			})
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return telephony.Result{}, fmt.Errorf("twilio: create call: %w: %v", ctxErr, err)
		}
		return telephony.Result{}, fmt.Errorf("twilio: create call: %w", err)
	}
	if call == nil || call.Sid == nil || *call.Sid == "" {
		return telephony.Result{}, errors.New("twilio: create call: response carried no call sid")
	}

	return telephony.Result{CallID: *call.Sid}, nil
}

// api builds a request-scoped client so the caller's context bounds the HTTP exchange.
func (p *Provider) api(ctx context.Context) *openapi.ApiService {
	base := &twclient.Client{
		Credentials: twclient.NewCredentials(p.apiKey, p.apiSecret),
		HTTPClient: &http.Client{
			Timeout:   p.timeout,
			Transport: contextTransport{ctx: ctx, next: p.transport},
		},
	}
	base.SetAccountSid(p.accountID)
	return openapi.NewApiServiceWithClient(base)
}

type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	return next.RoundTrip(req.WithContext(t.ctx))
}
