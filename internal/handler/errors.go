package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/Facats/slotwatcherss/internal/lifecycle"
)

// errorBody maps engine errors to a status, a stable code and the
// message shown to the person who issued the command.
func errorBody(err error) (int, string, string) {
	switch {
	case errors.Is(err, lifecycle.ErrDuplicateSlot):
		return http.StatusConflict, "duplicate_slot", "That member already has an active slot. Remove it before granting a new one."
	case errors.Is(err, lifecycle.ErrNoActiveSlot):
		return http.StatusNotFound, "no_active_slot", "That member does not have an active slot."
	case errors.Is(err, lifecycle.ErrSlotNotFound):
		return http.StatusNotFound, "slot_not_found", "No slot has that id."
	case errors.Is(err, lifecycle.ErrUnknownTier):
		return http.StatusBadRequest, "unknown_tier", "Unknown tier. Use tier1, tier2, tier3, tier4 or partnered."
	case errors.Is(err, lifecycle.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument", err.Error()
	case errors.Is(err, lifecycle.ErrAuthorizationUnavailable):
		return http.StatusBadGateway, "authorization_unavailable", "Could not update permissions on the platform. Nothing was changed; try again."
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable", "Slot storage is unavailable. Try again shortly."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "timeout", "The request timed out."
	}
	return http.StatusInternalServerError, "internal", "Something went wrong."
}

func writeError(c echo.Context, err error) error {
	status, code, msg := errorBody(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.JSON(status, echo.Map{"error": code, "message": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": msg})
}
