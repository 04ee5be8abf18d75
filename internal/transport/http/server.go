// Package http provides the HTTP server implementation for the relay.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/xiaot623/advisor/internal/config"
	"github.com/xiaot623/advisor/internal/service"
	v1 "github.com/xiaot623/advisor/internal/transport/http/v1"
	"github.com/xiaot623/advisor/internal/transport/ws"
)

// NewServer creates and configures the public HTTP server.
// It serves the chat relay over plain HTTP and WebSocket.
func NewServer(svc *service.Service, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = v1.HTTPErrorHandler

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit(cfg.BodyLimit()))
	if cfg.RateLimitRPS > 0 {
		burst := int(cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{Rate: rate.Limit(cfg.RateLimitRPS), Burst: burst},
		)))
	}

	// Handlers
	v1Handler := v1.NewHandler(svc)
	wsServer := ws.NewServer(svc, ws.Options{
		PingInterval:   cfg.WSPingInterval,
		WriteTimeout:   cfg.WSWriteTimeout,
		ReadTimeout:    cfg.WSReadTimeout,
		MaxMessageSize: cfg.MaxFrameBytes(),
	})

	// Register Routes
	v1Handler.RegisterRoutes(e)
	e.GET("/api/chat/ws", wsServer.HandleWebSocket)

	return e
}
