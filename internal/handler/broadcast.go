package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Facats/slotwatcherss/internal/lifecycle"
)

// BroadcastHandler is the hook the message-observation integration calls
// before letting a broadcast ping through.
type BroadcastHandler struct {
	Engine *lifecycle.Engine
}

func NewBroadcastHandler(engine *lifecycle.Engine) *BroadcastHandler {
	if engine == nil {
		panic("nil engine passed to NewBroadcastHandler")
	}
	return &BroadcastHandler{Engine: engine}
}

type broadcastRequest struct {
	HolderID    string `json:"holder_id"`
	ResourceRef string `json:"resource_ref"`
	MessageRef  string `json:"message_ref"`
}

// Attempt handles POST /v1/broadcasts.  On "over_limit" the caller must
// remove the triggering message; the slot has already been revoked.
func (h *BroadcastHandler) Attempt(c echo.Context) error {
	var body broadcastRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(body.HolderID) == "" || strings.TrimSpace(body.ResourceRef) == "" {
		return badRequest(c, "holder_id and resource_ref are required")
	}
	v, err := h.Engine.OnBroadcastAttempt(c.Request().Context(), body.HolderID, body.ResourceRef, body.MessageRef)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"decision": v.Decision,
		"quota":    toQuotaJSON(v),
	})
}
