package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ListCalls returns recent relay call audit records.
// GET /api/relay/calls
func (h *Handler) ListCalls(c echo.Context) error {
	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = val
	}

	calls, err := h.service.RecentCalls(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"calls": calls,
	})
}
