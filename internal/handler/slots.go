package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Facats/slotwatcherss/internal/lifecycle"
	"github.com/Facats/slotwatcherss/internal/sweep"
)

// Sweeper runs an expiration sweep on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) sweep.Result
}

// SlotHandler serves the slot command surface.
type SlotHandler struct {
	Engine  *lifecycle.Engine
	Sweeper Sweeper
}

// NewSlotHandler panics if a dependency is nil.
func NewSlotHandler(engine *lifecycle.Engine, sw Sweeper) *SlotHandler {
	if engine == nil || sw == nil {
		panic("nil dependency passed to NewSlotHandler")
	}
	return &SlotHandler{Engine: engine, Sweeper: sw}
}

type grantRequest struct {
	HolderID    string `json:"holder_id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Tier        string `json:"tier"`
	ResourceRef string `json:"resource_ref"`
}

// Grant handles POST /v1/slots.
func (h *SlotHandler) Grant(c echo.Context) error {
	var body grantRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(body.Tier) == "" {
		return badRequest(c, "tier is required")
	}
	slot, err := h.Engine.Grant(c.Request().Context(), lifecycle.GrantRequest{
		HolderID:    body.HolderID,
		DisplayName: body.DisplayName,
		AvatarURL:   body.AvatarURL,
		Tier:        body.Tier,
		ResourceRef: body.ResourceRef,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toSlotJSON(slot))
}

// Remove handles DELETE /v1/slots/:holder_id.
func (h *SlotHandler) Remove(c echo.Context) error {
	slot, err := h.Engine.Remove(c.Request().Context(), c.Param("holder_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toSlotJSON(slot))
}

// Query handles GET /v1/slots/:holder_id.
func (h *SlotHandler) Query(c echo.Context) error {
	view, err := h.Engine.Query(c.Request().Context(), c.Param("holder_id"))
	if err != nil {
		return writeError(c, err)
	}
	resp := echo.Map{
		"slot":  toSlotJSON(view.Slot),
		"quota": toQuotaJSON(view.Quota),
	}
	if view.Holder.ID != "" {
		resp["holder"] = echo.Map{
			"id":           view.Holder.ID,
			"display_name": view.Holder.DisplayName,
			"avatar_url":   view.Holder.AvatarURL,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// List handles GET /v1/slots.
func (h *SlotHandler) List(c echo.Context) error {
	slots, err := h.Engine.ListActive(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]slotJSON, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotJSON(s))
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": out, "count": len(out)})
}

// Delete handles DELETE /v1/admin/slots/:slot_id.
func (h *SlotHandler) Delete(c echo.Context) error {
	if err := h.Engine.DeleteSlot(c.Request().Context(), c.Param("slot_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Sweep handles POST /v1/admin/sweep.
func (h *SlotHandler) Sweep(c echo.Context) error {
	res := h.Sweeper.RunOnce(c.Request().Context())
	if res.Busy {
		return c.JSON(http.StatusConflict, echo.Map{"error": "sweep_running", "message": "A sweep is already running."})
	}
	var errs []string
	for _, err := range res.Errors {
		errs = append(errs, err.Error())
	}
	status := http.StatusOK
	if res.Expired == 0 && res.Failed == 0 && len(res.Errors) > 0 {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, echo.Map{
		"expired": res.Expired,
		"skipped": res.Skipped,
		"failed":  res.Failed,
		"errors":  errs,
	})
}
