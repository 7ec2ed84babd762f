package motion

import (
	"math"
	"time"

	"github.com/vessel-monitor/backend/internal/models"
)

// Animation duration bounds (milliseconds).
const (
	baseDurationMinMs  = 500
	baseDurationMaxMs  = 1200
	finalDurationMinMs = 350
	finalDurationMaxMs = 1200

	// Fraction of eased progress spent moving toward the predicted position
	// before converging on the confirmed target.
	predictedSplit = 0.7
)

// Ease is the adaptive S-curve t^γ / (t^γ + (1-t)^γ). Higher gamma gives a
// sharper acceleration out of the start position.
func Ease(t, gamma float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	tg := math.Pow(t, gamma)
	ig := math.Pow(1-t, gamma)
	return tg / (tg + ig)
}

// Animation is a planned blend from wherever the marker currently sits
// toward a confirmed target, optionally routed through a predicted position.
// Sampling is pure: At never mutates the plan, so the per-device task can
// call it every frame without coordination beyond the engine lock.
type Animation struct {
	Start     models.Coordinate
	Predicted *models.Coordinate
	Target    models.Coordinate
	StartTime time.Time
	Duration  time.Duration
	Gamma     float64
}

// Plan builds the animation for a newly confirmed fix.
//
// The base duration follows the actual reporting interval (0.10x, clamped to
// [500ms, 1200ms]); faster vessels get shorter, snappier animations via a
// duration scale inversely related to normalized speed; the result is
// clamped to [350ms, 1200ms] and adjusted by the global user multiplier.
func Plan(cal Calibration, start models.Coordinate, predicted *models.Coordinate,
	target models.Coordinate, intervalMs int64, smoothedSpeedMps, speedMultiplier float64,
	startTime time.Time) Animation {

	base := clamp(float64(intervalMs)*0.10, baseDurationMinMs, baseDurationMaxMs)

	norm := cal.NormalizedSpeed(smoothedSpeedMps)
	scale := cal.MaxDurationScale - norm*(cal.MaxDurationScale-cal.MinDurationScale)

	durationMs := clamp(base*scale, finalDurationMinMs, finalDurationMaxMs)
	if speedMultiplier > 0 {
		durationMs *= speedMultiplier
	}

	gamma := cal.AccelGammaMax - norm*(cal.AccelGammaMax-cal.AccelGammaMin)

	return Animation{
		Start:     start,
		Predicted: predicted,
		Target:    target,
		StartTime: startTime,
		Duration:  time.Duration(durationMs) * time.Millisecond,
		Gamma:     gamma,
	}
}

// At samples the animated position at the given instant. done is true once
// the full duration has elapsed, at which point the position equals Target.
func (a Animation) At(now time.Time) (models.Coordinate, bool) {
	if a.Duration <= 0 {
		return a.Target, true
	}
	progress := float64(now.Sub(a.StartTime)) / float64(a.Duration)
	if progress >= 1 {
		return a.Target, true
	}
	if progress < 0 {
		progress = 0
	}

	eased := Ease(progress, a.Gamma)
	if a.Predicted == nil {
		return lerp(a.Start, a.Target, eased), false
	}
	// Route through the predicted position: the first 70% of eased progress
	// closes on the prediction, the rest converges on the confirmed fix.
	if eased < predictedSplit {
		return lerp(a.Start, *a.Predicted, eased/predictedSplit), false
	}
	return lerp(*a.Predicted, a.Target, (eased-predictedSplit)/(1-predictedSplit)), false
}

func lerp(from, to models.Coordinate, t float64) models.Coordinate {
	return models.Coordinate{
		Lat: from.Lat + (to.Lat-from.Lat)*t,
		Lng: from.Lng + (to.Lng-from.Lng)*t,
	}
}
