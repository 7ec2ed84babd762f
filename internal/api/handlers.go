package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/vessel-monitor/backend/internal/live"
	"github.com/vessel-monitor/backend/internal/models"
	"github.com/vessel-monitor/backend/internal/motion"
)

// Tracker is the reconciled fleet view the handlers read from.
type Tracker interface {
	Snapshot() []models.Marker
	DeviceState(deviceID string) (models.DeviceState, bool)
	DeviceCount() int
}

// Stream exposes the upstream live channel for status reporting and
// visibility gating.
type Stream interface {
	State() live.State
	Attempts() int
	Status() models.ConnectionStatus
	SetVisible(visible bool)
}

// Handler handles API requests.
type Handler struct {
	tracker         Tracker
	stream          Stream
	cal             motion.Calibration
	speedMultiplier float64
	version         string
}

// NewHandler creates a new API handler.
func NewHandler(tracker Tracker, stream Stream, cal motion.Calibration, speedMultiplier float64, version string) *Handler {
	return &Handler{
		tracker:         tracker,
		stream:          stream,
		cal:             cal,
		speedMultiplier: speedMultiplier,
		version:         version,
	}
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"vessels": h.tracker.DeviceCount(),
	})
}

// HandleVessels returns the current marker snapshot as JSON.
func (h *Handler) HandleVessels(c echo.Context) error {
	markers := h.tracker.Snapshot()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"vessels": markers,
		"count":   len(markers),
	})
}

// HandleVesselsMsgpack returns the marker snapshot in MessagePack format.
// The map surface polls this on reconnect; msgpack keeps large fleets cheap.
func (h *Handler) HandleVesselsMsgpack(c echo.Context) error {
	markers := h.tracker.Snapshot()
	data, err := msgpack.Marshal(map[string]interface{}{
		"vessels": markers,
		"count":   len(markers),
	})
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleVessel returns the full reconciled state for one device.
func (h *Handler) HandleVessel(c echo.Context) error {
	id := c.Param("deviceId")
	state, ok := h.tracker.DeviceState(id)
	if !ok {
		return NewNotFoundError("vessel", id)
	}
	return c.JSON(http.StatusOK, state)
}

// HandleStreamStatus reports the upstream channel state for UI indicators.
func (h *Handler) HandleStreamStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   h.stream.Status(),
		"state":    h.stream.State().String(),
		"attempts": h.stream.Attempts(),
	})
}

// HandleVisibility gates upstream reconnection on map surface visibility.
// Browsers report visibilitychange here so a hidden tab stops burning
// reconnect attempts.
func (h *Handler) HandleVisibility(c echo.Context) error {
	var req struct {
		Visible *bool `json:"visible"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Visible == nil {
		return NewBadRequestError("visible is required", nil)
	}

	h.stream.SetVisible(*req.Visible)
	return c.JSON(http.StatusOK, map[string]bool{"visible": *req.Visible})
}

// HandleCalibration returns the active motion tuning.
func (h *Handler) HandleCalibration(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"calibration":     h.cal,
		"speedMultiplier": h.speedMultiplier,
	})
}
