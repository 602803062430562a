package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/acme/emergency-call-relay/pkg/errors"
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case apperrors.Is(err, apperrors.ErrValidation):
		return fiber.NewError(http.StatusBadRequest, apperrors.PublicMessage(err))
	case apperrors.Is(err, apperrors.ErrMisconfigured):
		return fiber.NewError(http.StatusInternalServerError, apperrors.PublicMessage(err))
	case apperrors.Is(err, apperrors.ErrConflict):
		return fiber.NewError(http.StatusConflict, apperrors.PublicMessage(err))
	default:
		return err
	}
}
