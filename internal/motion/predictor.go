package motion

import (
	"github.com/vessel-monitor/backend/internal/geo"
	"github.com/vessel-monitor/backend/internal/models"
)

// Prediction bounds. Speeds outside this window are noise (stationary
// jitter) or GPS outliers; no vessel in scope exceeds ~180 km/h. The
// lookahead cap keeps sparse, noisy fixes from producing wild extrapolation.
const (
	MinPredictSpeedMps = 0.5
	MaxPredictSpeedMps = 50.0
	MaxLookaheadMs     = 8000
)

// Predict extrapolates a plausible current position from the last two fixes
// by projecting along the observed bearing at the observed speed. It returns
// the current fix's position unchanged when there is no previous fix, a
// non-positive interval, or an implausible computed speed.
func Predict(current models.Fix, previous *models.Fix, observedIntervalMs, lookaheadMs int64) models.Coordinate {
	if previous == nil || observedIntervalMs <= 0 || lookaheadMs <= 0 {
		return current.Position()
	}

	dist := geo.DistanceMeters(previous.Lat, previous.Lng, current.Lat, current.Lng)
	speed := dist / (float64(observedIntervalMs) / 1000)
	if speed < MinPredictSpeedMps || speed > MaxPredictSpeedMps {
		return current.Position()
	}

	if lookaheadMs > MaxLookaheadMs {
		lookaheadMs = MaxLookaheadMs
	}

	bearing := geo.BearingDegrees(previous.Lat, previous.Lng, current.Lat, current.Lng)
	ahead := speed * (float64(lookaheadMs) / 1000)
	lat, lng := geo.DestinationPoint(current.Lat, current.Lng, bearing, ahead)
	return models.Coordinate{Lat: lat, Lng: lng}
}

// ObservedSpeedMps returns the instantaneous speed implied by two fixes, or
// 0 when the interval is not positive.
func ObservedSpeedMps(current models.Fix, previous *models.Fix, observedIntervalMs int64) float64 {
	if previous == nil || observedIntervalMs <= 0 {
		return 0
	}
	dist := geo.DistanceMeters(previous.Lat, previous.Lng, current.Lat, current.Lng)
	return dist / (float64(observedIntervalMs) / 1000)
}
