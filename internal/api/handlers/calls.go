package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/acme/emergency-call-relay/internal/domain"
	apperrors "github.com/acme/emergency-call-relay/pkg/errors"
)

// HeaderIdempotencyKey lets a caller mark retries of the same trigger.
const HeaderIdempotencyKey = "Idempotency-Key"

// placeCallRequest keeps "to" untyped so that a non-string value is reported
// as a missing number rather than a decoding failure.
type placeCallRequest struct {
	To any `json:"to"`
}

type callPlacedResponse struct {
	Success bool   `json:"success"`
	SID     string `json:"sid"`
}

type callFailedResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (h *HandlerSet) placeCall(ctx *fiber.Ctx) error {
	var req placeCallRequest
	if body := bytes.TrimSpace(ctx.Body()); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}
	}
	to, _ := req.To.(string)

	result, err := h.calls.PlaceEmergencyCall(ctx.UserContext(), domain.OutboundCallRequest{
		To:             to,
		IdempotencyKey: ctx.Get(HeaderIdempotencyKey),
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrProvider) {
			return ctx.Status(http.StatusInternalServerError).JSON(callFailedResponse{
				Success: false,
				Error:   result.ErrorMessage,
			})
		}
		return translateError(err)
	}

	return ctx.Status(http.StatusOK).JSON(callPlacedResponse{Success: true, SID: result.CallID})
}
