package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	callsvc "github.com/acme/emergency-call-relay/internal/service/call"
	"github.com/acme/emergency-call-relay/internal/telephony"
	"github.com/acme/emergency-call-relay/internal/telephony/mock"
)

const fromNumber = "+15550009999"

func newTestApp(provider telephony.Provider, opts ...callsvc.Option) *fiber.App {
	svc := callsvc.NewService(provider, callsvc.Settings{
		FromNumber:   fromNumber,
		Announcement: "<Response><Say>test</Say></Response>",
		Timeout:      time.Second,
	}, nil, opts...)
	return newAppWith(NewHandlerSet(svc, nil, nil))
}

func newAppWith(h *HandlerSet) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: h.ErrorHandler})
	h.Register(app)
	return app
}

func postCall(t *testing.T, app *fiber.App, body string, headers ...string) (int, map[string]any) {
	t.Helper()
	status, decoded, err := sendCall(app, body, headers...)
	require.NoError(t, err)
	return status, decoded
}

// sendCall performs the request without touching t, so it is safe off the test goroutine.
func sendCall(app *fiber.App, body string, headers ...string) (int, map[string]any, error) {
	req := httptest.NewRequest(http.MethodPost, "/api/call", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return 0, nil, fmt.Errorf("decode %q: %w", raw, err)
	}
	return resp.StatusCode, decoded, nil
}

func sidProvider(sid string) *mock.Provider {
	return mock.NewScripted(func(context.Context, telephony.CallRequest) (telephony.Result, error) {
		return telephony.Result{CallID: sid}, nil
	})
}

func TestPlaceCallRejectsMissingOrInvalidTo(t *testing.T) {
	provider := sidProvider("CA123")
	app := newTestApp(provider)

	bodies := []string{
		``,
		`{}`,
		`null`,
		`{"to": ""}`,
		`{"to": "   "}`,
		`{"to": null}`,
		`{"to": 15550001111}`,
		`{"to": ["+15550001111"]}`,
		`{"to": {"number": "+15550001111"}}`,
	}
	for _, body := range bodies {
		status, resp := postCall(t, app, body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.Equal(t, map[string]any{"error": "Missing 'to' number"}, resp, body)
	}
	assert.Zero(t, provider.CallCount(), "no provider call for invalid input")
}

func TestPlaceCallMalformedJSON(t *testing.T) {
	provider := sidProvider("CA123")
	app := newTestApp(provider)

	status, resp := postCall(t, app, `{"to": `)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid request body", resp["error"])
	assert.Zero(t, provider.CallCount())
}

func TestPlaceCallMisconfigured(t *testing.T) {
	app := newTestApp(nil)

	for _, to := range []string{"+15550001111", "+442071838750", "anything"} {
		status, resp := postCall(t, app, fmt.Sprintf(`{"to": %q}`, to))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, map[string]any{"error": "Server misconfigured (missing credentials)"}, resp)
	}
}

func TestPlaceCallSuccess(t *testing.T) {
	provider := sidProvider("CA123")
	app := newTestApp(provider)

	status, resp := postCall(t, app, `{"to": "+15550001111"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]any{"success": true, "sid": "CA123"}, resp)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "+15550001111", calls[0].To)
	assert.Equal(t, fromNumber, calls[0].From)
}

func TestPlaceCallProviderFailureIsPassedThroughWithoutRetry(t *testing.T) {
	provider := mock.NewScripted(func(context.Context, telephony.CallRequest) (telephony.Result, error) {
		return telephony.Result{}, errors.New("Invalid number")
	})
	app := newTestApp(provider)

	status, resp := postCall(t, app, `{"to": "+15550001111"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, map[string]any{"success": false, "error": "Invalid number"}, resp)
	assert.Equal(t, 1, provider.CallCount())
}

func TestPlaceCallConcurrentRequestsKeepTheirOwnSID(t *testing.T) {
	provider := mock.NewScripted(func(_ context.Context, req telephony.CallRequest) (telephony.Result, error) {
		// Make the first number the slow one so responses finish out of order.
		if req.To == "+15550000001" {
			time.Sleep(30 * time.Millisecond)
		}
		return telephony.Result{CallID: "CA" + strings.TrimPrefix(req.To, "+")}, nil
	})
	app := newTestApp(provider)

	numbers := []string{"+15550000001", "+15550000002"}
	statuses := make([]int, len(numbers))
	sids := make([]any, len(numbers))
	errs := make([]error, len(numbers))
	var wg sync.WaitGroup
	for i, n := range numbers {
		wg.Add(1)
		go func(i int, n string) {
			defer wg.Done()
			var resp map[string]any
			statuses[i], resp, errs[i] = sendCall(app, fmt.Sprintf(`{"to": %q}`, n))
			sids[i] = resp["sid"]
		}(i, n)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, statuses)
	assert.Equal(t, []any{"CA15550000001", "CA15550000002"}, sids)
	assert.Equal(t, 2, provider.CallCount())
}

type stubGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *stubGuard) Claim(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *stubGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}

func TestPlaceCallDuplicateIdempotencyKey(t *testing.T) {
	provider := sidProvider("CA123")
	app := newTestApp(provider, callsvc.WithDuplicateGuard(&stubGuard{seen: map[string]bool{}}))

	status, _ := postCall(t, app, `{"to": "+15550001111"}`, HeaderIdempotencyKey, "press-42")
	assert.Equal(t, http.StatusOK, status)

	status, resp := postCall(t, app, `{"to": "+15550001111"}`, HeaderIdempotencyKey, "press-42")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, map[string]any{"error": "Duplicate call request"}, resp)
	assert.Equal(t, 1, provider.CallCount())
}

func TestUnknownRouteUsesErrorHandler(t *testing.T) {
	app := newTestApp(sidProvider("CA123"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/nope", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "error")
}
