package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/acme/emergency-call-relay/internal/domain"
	"github.com/acme/emergency-call-relay/pkg/logger"
)

const healthTimeout = 2 * time.Second

// CallPlacer is the relay operation exposed over HTTP.
type CallPlacer interface {
	PlaceEmergencyCall(ctx context.Context, req domain.OutboundCallRequest) (domain.OutboundCallResult, error)
	Configured() bool
}

// HandlerSet bundles all HTTP handlers.
type HandlerSet struct {
	calls  CallPlacer
	logger *logger.Logger
	checks map[string]func(context.Context) error
}

// NewHandlerSet creates a new handler bundle. checks are probed by /healthz.
func NewHandlerSet(calls CallPlacer, lg *logger.Logger, checks map[string]func(context.Context) error) *HandlerSet {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &HandlerSet{calls: calls, logger: lg, checks: checks}
}

// Register wires all routes onto the fiber app.
func (h *HandlerSet) Register(app *fiber.App) {
	app.Get("/healthz", h.health)

	api := app.Group("/api")
	api.Post("/call", h.placeCall)
}

// ErrorHandler provides centralized error responses.
func (h *HandlerSet) ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	if code >= fiber.StatusInternalServerError {
		h.logger.WithContext(ctx.UserContext()).Error("request failed",
			zap.String("method", ctx.Method()),
			zap.String("path", ctx.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)
	}

	return ctx.Status(code).JSON(fiber.Map{"error": message})
}

func (h *HandlerSet) health(ctx *fiber.Ctx) error {
	healthCtx, cancel := context.WithTimeout(ctx.UserContext(), healthTimeout)
	defer cancel()

	errs := make(map[string]string)
	for name, check := range h.checks {
		if err := check(healthCtx); err != nil {
			errs[name] = err.Error()
		}
	}

	provider := "configured"
	if !h.calls.Configured() {
		provider = "misconfigured"
	}

	status := "ok"
	if len(errs) > 0 || !h.calls.Configured() {
		status = "degraded"
	}

	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":   status,
		"provider": provider,
		"errors":   errs,
	})
}
