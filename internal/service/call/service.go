package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/emergency-call-relay/internal/domain"
	"github.com/acme/emergency-call-relay/internal/metrics"
	"github.com/acme/emergency-call-relay/internal/telephony"
	apperrors "github.com/acme/emergency-call-relay/pkg/errors"
	"github.com/acme/emergency-call-relay/pkg/logger"
)

// Caller-facing messages.
const (
	MsgMissingTo     = "Missing 'to' number"
	MsgMisconfigured = "Server misconfigured (missing credentials)"
	MsgDuplicate     = "Duplicate call request"
)

const (
	// DefaultTimeout bounds a provider call when no positive timeout is configured.
	DefaultTimeout = 10 * time.Second

	eventPublishTimeout = 500 * time.Millisecond
)

// EventPublisher receives a record of every provider invocation.
type EventPublisher interface {
	PublishCallEvent(ctx context.Context, ev domain.CallEvent) error
}

// DuplicateGuard claims idempotency keys.
type DuplicateGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Settings are the immutable call parameters fixed at startup.
type Settings struct {
	FromNumber   string
	Announcement string
	Timeout      time.Duration
}

// Option customises a Service.
type Option func(*Service)

// WithDuplicateGuard enables Idempotency-Key handling.
func WithDuplicateGuard(g DuplicateGuard) Option {
	return func(s *Service) { s.guard = g }
}

// WithEventPublisher emits a CallEvent after every provider invocation.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithMetrics records call outcomes on sink.
func WithMetrics(sink metrics.Sink) Option {
	return func(s *Service) { s.metrics = sink }
}

// Service relays emergency call requests to the telephony provider.
// A nil provider means the credentials were incomplete at startup; every call
// attempt then fails with ErrMisconfigured.
type Service struct {
	provider telephony.Provider
	settings Settings
	guard    DuplicateGuard
	events   EventPublisher
	metrics  metrics.Sink
	logger   *logger.Logger
	tracer   trace.Tracer
}

// NewService builds the relay service.
func NewService(provider telephony.Provider, settings Settings, lg *logger.Logger, opts ...Option) *Service {
	if lg == nil {
		lg = logger.NewNop()
	}
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}
	s := &Service{
		provider: provider,
		settings: settings,
		metrics:  metrics.NoopSink{},
		logger:   lg,
		tracer:   otel.Tracer("relay.call"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether a provider client is available.
func (s *Service) Configured() bool {
	return s.provider != nil
}

// PlaceEmergencyCall places exactly one outbound call to req.To. Provider
// failures are returned as-is and never retried.
func (s *Service) PlaceEmergencyCall(ctx context.Context, req domain.OutboundCallRequest) (domain.OutboundCallResult, error) {
	to := strings.TrimSpace(req.To)
	if to == "" {
		s.metrics.RequestRejected(metrics.ReasonInvalidRequest)
		return domain.OutboundCallResult{ErrorMessage: MsgMissingTo}, apperrors.New(apperrors.ErrValidation, MsgMissingTo)
	}

	if s.provider == nil {
		s.metrics.RequestRejected(metrics.ReasonMisconfigured)
		s.logger.WithContext(ctx).Error("call rejected: provider credentials incomplete", logger.MaskPhone(to))
		return domain.OutboundCallResult{ErrorMessage: MsgMisconfigured}, apperrors.New(apperrors.ErrMisconfigured, MsgMisconfigured)
	}

	claimed, err := s.claim(ctx, req.IdempotencyKey)
	if err != nil {
		return domain.OutboundCallResult{ErrorMessage: MsgDuplicate}, err
	}

	ctx, span := s.tracer.Start(ctx, "relay.place_call", trace.WithAttributes(
		attribute.Bool("relay.idempotent", claimed),
	))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	lg := s.logger.WithContext(ctx).With(logger.MaskPhone(to))
	lg.Info("placing call")

	start := time.Now()
	res, callErr := s.provider.PlaceCall(callCtx, telephony.CallRequest{
		To:           to,
		From:         s.settings.FromNumber,
		Announcement: s.settings.Announcement,
	})
	elapsed := time.Since(start)

	event := domain.CallEvent{
		ID:         uuid.New(),
		To:         to,
		From:       s.settings.FromNumber,
		Duration:   elapsed,
		OccurredAt: time.Now().UTC(),
	}

	if callErr != nil {
		message := telephony.Message(callErr)
		if errors.Is(callErr, context.DeadlineExceeded) {
			message = fmt.Sprintf("provider request timed out after %s", s.settings.Timeout)
		}

		span.RecordError(callErr)
		span.SetStatus(codes.Error, message)
		lg.Error("call failed",
			zap.String("category", classify(callErr)),
			zap.Duration("elapsed", elapsed),
			zap.Error(callErr),
		)
		s.metrics.ProviderCallCompleted(metrics.OutcomeFailed, elapsed)

		var refused *telephony.Error
		if claimed && errors.As(callErr, &refused) {
			// The provider refused the call outright, so the key may be reused.
			if err := s.guard.Release(context.WithoutCancel(ctx), req.IdempotencyKey); err != nil {
				lg.Warn("release idempotency key", zap.Error(err))
			}
		}

		event.Outcome = domain.CallOutcomeFailed
		event.Error = message
		s.publish(ctx, event)

		return domain.OutboundCallResult{ErrorMessage: message}, apperrors.WithCause(apperrors.ErrProvider, message, callErr)
	}

	span.SetAttributes(attribute.String("relay.call_sid", res.CallID))
	lg.Info("call placed", zap.String("sid", res.CallID), zap.Duration("elapsed", elapsed))
	s.metrics.ProviderCallCompleted(metrics.OutcomePlaced, elapsed)

	event.Outcome = domain.CallOutcomePlaced
	event.CallID = res.CallID
	s.publish(ctx, event)

	return domain.OutboundCallResult{Success: true, CallID: res.CallID}, nil
}

// claim reports whether key was claimed. Guard outages fail open: an emergency
// call must not be blocked by the de-duplication store.
func (s *Service) claim(ctx context.Context, key string) (bool, error) {
	if s.guard == nil || key == "" {
		return false, nil
	}
	ok, err := s.guard.Claim(ctx, key)
	if err != nil {
		s.logger.WithContext(ctx).Warn("idempotency guard unavailable, continuing", zap.Error(err))
		return false, nil
	}
	if !ok {
		s.metrics.RequestRejected(metrics.ReasonDuplicate)
		return false, apperrors.New(apperrors.ErrConflict, MsgDuplicate)
	}
	return true, nil
}

func (s *Service) publish(ctx context.Context, ev domain.CallEvent) {
	if s.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if err := s.events.PublishCallEvent(pubCtx, ev); err != nil {
		s.logger.WithContext(ctx).Warn("publish call event", zap.String("event_id", ev.ID.String()), zap.Error(err))
	}
}

// classify labels a provider failure for logs: provider-side rejection,
// timeout, or a network problem on the way to the provider.
func classify(err error) string {
	var perr *telephony.Error
	switch {
	case errors.As(err, &perr):
		if perr.StatusCode == 401 || perr.StatusCode == 403 {
			return "credentials"
		}
		return "provider"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "network"
	}
}
