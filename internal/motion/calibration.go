// Package motion holds the tunable motion model for vessel markers:
// calibration thresholds, dead-reckoning prediction, and the animation plan
// used to move a marker smoothly between fixes.
package motion

import "strconv"

// Calibration is the process-wide motion tuning. Loaded once at startup and
// read-only afterwards.
type Calibration struct {
	IdleSpeedMps   float64 `json:"idleSpeedMps"`
	NormalSpeedMps float64 `json:"normalSpeedMps"`
	HighSpeedMps   float64 `json:"highSpeedMps"`

	MinDurationScale float64 `json:"minDurationScale"`
	MaxDurationScale float64 `json:"maxDurationScale"`

	// SpeedResponseSensitivity (0..1) controls how strongly speed shortens
	// animations and sharpens easing.
	SpeedResponseSensitivity float64 `json:"speedResponseSensitivity"`

	AccelGammaMin float64 `json:"accelGammaMin"`
	AccelGammaMax float64 `json:"accelGammaMax"`

	// SpeedSmoothing is the EMA factor applied to per-fix instantaneous speed.
	SpeedSmoothing float64 `json:"speedSmoothing"`
}

// DefaultCalibration returns the stock tuning used when no override is
// persisted.
func DefaultCalibration() Calibration {
	return Calibration{
		IdleSpeedMps:             0.5,
		NormalSpeedMps:           4.0,
		HighSpeedMps:             12.0,
		MinDurationScale:         0.55,
		MaxDurationScale:         1.35,
		SpeedResponseSensitivity: 0.8,
		AccelGammaMin:            1.4,
		AccelGammaMax:            2.6,
		SpeedSmoothing:           0.35,
	}
}

// Override keys as persisted in the calibration store.
const (
	keyIdleSpeed        = "idle_speed_mps"
	keyNormalSpeed      = "normal_speed_mps"
	keyHighSpeed        = "high_speed_mps"
	keyMinDuration      = "min_duration_scale"
	keyMaxDuration      = "max_duration_scale"
	keySpeedSensitivity = "speed_response_sensitivity"
	keyGammaMin         = "accel_gamma_min"
	keyGammaMax         = "accel_gamma_max"
	keySpeedSmoothing   = "speed_smoothing"

	// KeySpeedMultiplier is the user-configurable global animation speed
	// multiplier, stored alongside the calibration overrides.
	KeySpeedMultiplier = "animation_speed_multiplier"
)

// CalibrationFromOverrides merges persisted overrides onto the defaults.
// Parsing is defensive: a missing, malformed, or out-of-range value leaves
// the default in place. Never fails.
func CalibrationFromOverrides(values map[string]string) Calibration {
	cal := DefaultCalibration()
	if len(values) == 0 {
		return cal
	}

	applyPositive(values, keyIdleSpeed, &cal.IdleSpeedMps)
	applyPositive(values, keyNormalSpeed, &cal.NormalSpeedMps)
	applyPositive(values, keyHighSpeed, &cal.HighSpeedMps)
	applyPositive(values, keyMinDuration, &cal.MinDurationScale)
	applyPositive(values, keyMaxDuration, &cal.MaxDurationScale)
	applyUnit(values, keySpeedSensitivity, &cal.SpeedResponseSensitivity)
	applyPositive(values, keyGammaMin, &cal.AccelGammaMin)
	applyPositive(values, keyGammaMax, &cal.AccelGammaMax)
	applyUnit(values, keySpeedSmoothing, &cal.SpeedSmoothing)

	// The thresholds only make sense ordered; a nonsensical override set
	// falls back wholesale rather than producing an inverted ramp.
	if cal.IdleSpeedMps >= cal.HighSpeedMps ||
		cal.MinDurationScale > cal.MaxDurationScale ||
		cal.AccelGammaMin > cal.AccelGammaMax {
		return DefaultCalibration()
	}
	return cal
}

// SpeedMultiplierFromOverrides reads the global animation speed multiplier,
// clamped to a sane range. Defaults to 1.
func SpeedMultiplierFromOverrides(values map[string]string) float64 {
	raw, ok := values[KeySpeedMultiplier]
	if !ok {
		return 1.0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 1.0
	}
	return clamp(v, 0.25, 3.0)
}

// NormalizedSpeed maps a smoothed speed onto [0,1] across the idle..high
// ramp, weighted by the response sensitivity.
func (c Calibration) NormalizedSpeed(speedMps float64) float64 {
	span := c.HighSpeedMps - c.IdleSpeedMps
	if span <= 0 {
		return 0
	}
	norm := clamp((speedMps-c.IdleSpeedMps)/span, 0, 1)
	return norm * c.SpeedResponseSensitivity
}

// SmoothSpeed folds an instantaneous speed sample into the running EMA.
func (c Calibration) SmoothSpeed(previous, instant float64) float64 {
	if previous <= 0 {
		return instant
	}
	return c.SpeedSmoothing*instant + (1-c.SpeedSmoothing)*previous
}

func applyPositive(values map[string]string, key string, dst *float64) {
	raw, ok := values[key]
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return
	}
	*dst = v
}

func applyUnit(values map[string]string, key string, dst *float64) {
	raw, ok := values[key]
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v > 1 {
		return
	}
	*dst = v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
