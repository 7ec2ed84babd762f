package models

import "math"

// Coordinate is a geographic position (WGS 84).
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether both components are finite numbers.
func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Lat) && !math.IsInf(c.Lat, 0) &&
		!math.IsNaN(c.Lng) && !math.IsInf(c.Lng, 0)
}

// Fix is a single GPS observation for a tracked device. Immutable once
// received; identity belongs to the device, not the fix.
type Fix struct {
	DeviceID    string  `json:"deviceId"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	TimestampMs int64   `json:"timestamp"`
	RawStatus   string  `json:"status,omitempty"`
}

// Position returns the fix location as a Coordinate.
func (f Fix) Position() Coordinate {
	return Coordinate{Lat: f.Lat, Lng: f.Lng}
}

// Valid reports whether the fix can enter reconciliation: a device identity
// and finite coordinates. Fixes failing this are dropped upstream.
func (f Fix) Valid() bool {
	return f.DeviceID != "" && f.Position().Valid()
}
