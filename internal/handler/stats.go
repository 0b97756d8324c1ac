package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Facats/slotwatcherss/internal/lifecycle"
)

type StatsHandler struct {
	Engine *lifecycle.Engine
}

func NewStatsHandler(engine *lifecycle.Engine) *StatsHandler {
	if engine == nil {
		panic("nil engine passed to NewStatsHandler")
	}
	return &StatsHandler{Engine: engine}
}

// Get handles GET /v1/stats?within=24h.
func (h *StatsHandler) Get(c echo.Context) error {
	within := 24 * time.Hour
	if raw := c.QueryParam("within"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return badRequest(c, "within must be a positive duration such as 24h")
		}
		within = d
	}
	st, err := h.Engine.Stats(c.Request().Context(), within)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total_slots":      st.TotalSlots,
		"active_slots":     st.ActiveSlots,
		"expiring_soon":    st.ExpiringSoon,
		"expiring_within":  within.String(),
		"today_ping_count": st.TodayPingCount,
	})
}
