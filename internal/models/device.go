package models

// DeviceStatus classifies a tracker by the age of its last fix.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
	StatusUnknown DeviceStatus = "unknown"
)

// DeviceState is the reconciled view of one tracked device. A state is
// created on the first fix for a new device ID and updated on every accepted
// fix. It is never deleted while the process runs: absence from a live batch
// means "presumed offline", not "removed". PreviousFix exists only to support
// velocity and bearing computation; it is overwritten, never accumulated.
type DeviceState struct {
	DeviceID     string       `json:"deviceId"`
	LastFix      Fix          `json:"lastFix"`
	PreviousFix  *Fix         `json:"previousFix,omitempty"`
	Rendered     Coordinate   `json:"rendered"`
	Status       DeviceStatus `json:"status"`
	LastUpdateMs int64        `json:"lastUpdateMs"`
	IsViolating  bool         `json:"isViolating"`
}

// Marker is the drawable output consumed by the rendering surface.
type Marker struct {
	DeviceID    string         `json:"deviceId" msgpack:"id"`
	Position    Coordinate     `json:"position" msgpack:"pos"`
	Status      DeviceStatus   `json:"status" msgpack:"st"`
	IsViolating bool           `json:"isViolating" msgpack:"vio"`
	Display     DisplayDetails `json:"display" msgpack:"dsp"`
}

// DisplayDetails carries registry-sourced metadata for marker labels.
type DisplayDetails struct {
	Name         string `json:"name,omitempty" msgpack:"name,omitempty"`
	Municipality string `json:"municipality,omitempty" msgpack:"mun,omitempty"`
}

// ConnectionStatus describes the upstream live channel for UI indicators.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionError        ConnectionStatus = "error"
)
