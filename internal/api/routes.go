// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers all API routes with the Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, hub *Hub) {
	// Health check
	e.GET("/health", h.HandleHealth)

	// Marker snapshot routes
	vessels := e.Group("/api/vessels")
	vessels.GET("", h.HandleVessels)
	vessels.GET("/msgpack", h.HandleVesselsMsgpack)
	vessels.GET("/:deviceId", h.HandleVessel)

	// Upstream stream control
	stream := e.Group("/api/stream")
	stream.GET("/status", h.HandleStreamStatus)
	stream.POST("/visibility", h.HandleVisibility)

	// Motion tuning
	e.GET("/api/calibration", h.HandleCalibration)

	// Map surface push channel
	e.GET("/api/ws", hub.HandleWebSocket)

	// Prometheus metrics
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// SetupMiddleware configures the custom error handler.
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
