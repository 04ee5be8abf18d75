package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/advisor/internal/domain"
)

// ProvidersResponse lists what a client can choose from.
type ProvidersResponse struct {
	Providers        []domain.ProviderConfig `json:"providers"`
	ResponseStyles   []domain.ResponseStyle  `json:"responseStyles"`
	DefaultStyle     domain.ResponseStyle    `json:"defaultResponseStyle"`
	AllowedMIMETypes []string                `json:"allowedMimeTypes"`
}

// ListProviders returns the provider table.
// GET /api/providers
func (h *Handler) ListProviders(c echo.Context) error {
	return c.JSON(http.StatusOK, ProvidersResponse{
		Providers:        h.service.Providers(),
		ResponseStyles:   h.service.ResponseStyles(),
		DefaultStyle:     domain.DefaultResponseStyle,
		AllowedMIMETypes: h.service.AllowedMIMETypes(),
	})
}
