package twilio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/emergency-call-relay/internal/config"
	"github.com/acme/emergency-call-relay/internal/telephony"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

var testCreds = config.ProviderCredentials{
	AccountID:  "AC123",
	APIKey:     "SK123",
	APISecret:  "secret",
	FromNumber: "+15550009999",
}

func TestNewProviderRejectsIncompleteCredentials(t *testing.T) {
	creds := testCreds
	creds.APISecret = ""
	_, err := NewProvider(creds, config.CallBridgeConfig{})
	assert.Error(t, err)
}

func TestPlaceCallSuccess(t *testing.T) {
	var hits int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Calls.json", r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "SK123", user)
		assert.Equal(t, "secret", pass)

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		form, err := url.ParseQuery(string(raw))
		require.NoError(t, err)
		assert.Equal(t, "+15550001111", form.Get("To"))
		assert.Equal(t, "+15550009999", form.Get("From"))
		assert.Equal(t, config.DefaultAnnouncement, form.Get("Twiml"))

		return jsonResponse(http.StatusCreated, `{"sid":"CA123","status":"queued"}`), nil
	})

	p, err := NewProvider(testCreds, config.CallBridgeConfig{}, WithTransport(rt))
	require.NoError(t, err)

	res, err := p.PlaceCall(context.Background(), telephony.CallRequest{
		To:           "+15550001111",
		From:         testCreds.FromNumber,
		Announcement: config.DefaultAnnouncement,
	})
	require.NoError(t, err)
	assert.Equal(t, "CA123", res.CallID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestPlaceCallSurfacesTwilioMessage(t *testing.T) {
	var hits int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&hits, 1)
		return jsonResponse(http.StatusBadRequest,
			`{"code":21211,"message":"Invalid number","more_info":"https://www.twilio.com/docs/errors/21211","status":400}`), nil
	})

	p, err := NewProvider(testCreds, config.CallBridgeConfig{}, WithTransport(rt))
	require.NoError(t, err)

	_, err = p.PlaceCall(context.Background(), telephony.CallRequest{To: "bogus", From: testCreds.FromNumber})
	require.Error(t, err)

	var perr *telephony.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 21211, perr.Code)
	assert.Equal(t, "Invalid number", telephony.Message(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "no retry on provider failure")
}

func TestPlaceCallTransportFailure(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	p, err := NewProvider(testCreds, config.CallBridgeConfig{}, WithTransport(rt))
	require.NoError(t, err)

	_, err = p.PlaceCall(context.Background(), telephony.CallRequest{To: "+15550001111", From: testCreds.FromNumber})
	require.Error(t, err)
	assert.Contains(t, telephony.Message(err), "connection refused")
}

func TestPlaceCallCancelledContextSkipsRequest(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected for a cancelled context")
		return nil, nil
	})

	p, err := NewProvider(testCreds, config.CallBridgeConfig{}, WithTransport(rt))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.PlaceCall(ctx, telephony.CallRequest{To: "+15550001111", From: testCreds.FromNumber})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlaceCallBoundedByRequestTimeout(t *testing.T) {
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		select {
		case <-r.Context().Done():
			return nil, r.Context().Err()
		case <-time.After(2 * time.Second):
			return jsonResponse(http.StatusCreated, `{"sid":"CAlate"}`), nil
		}
	})
	p, err := NewProvider(testCreds, config.CallBridgeConfig{RequestTimeout: 100 * time.Millisecond}, WithTransport(rt))
	require.NoError(t, err)

	start := time.Now()
	res, err := p.PlaceCall(context.Background(), telephony.CallRequest{To: "+15550001111", From: testCreds.FromNumber})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, res.CallID)
	assert.Less(t, elapsed, time.Second)
}

func TestNewProviderDefaultsNonPositiveTimeout(t *testing.T) {
	p, err := NewProvider(testCreds, config.CallBridgeConfig{RequestTimeout: -time.Second})
	require.NoError(t, err)
	assert.Equal(t, defaultTimeout, p.timeout)
}
