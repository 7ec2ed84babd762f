// Package track implements the device reconciliation engine: it merges
// incoming GPS fixes into per-device state, suppresses dead-band jitter,
// derives online/offline status, and drives the per-device animation tasks
// that produce smooth rendered positions between fixes.
package track

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vessel-monitor/backend/internal/geo"
	"github.com/vessel-monitor/backend/internal/models"
	"github.com/vessel-monitor/backend/internal/motion"
	"github.com/vessel-monitor/backend/internal/observability"
)

// DeviceRegistry resolves device identity against the fleet registry.
type DeviceRegistry interface {
	IsActive(deviceID string) bool
	Display(deviceID string) models.DisplayDetails
}

// Options tune the engine. Zero values fall back to the defaults below.
type Options struct {
	// DeadBandMeters suppresses rendered movement below this displacement.
	DeadBandMeters float64
	// OfflineAfter is the fix age beyond which a device is derived offline.
	OfflineAfter time.Duration
	// FrameInterval is the animation sampling period.
	FrameInterval time.Duration
	// SpeedMultiplier is the user-configurable global animation multiplier.
	SpeedMultiplier float64
	// OnViolation, when set, is invoked on every violation transition.
	OnViolation func(deviceID string, violating bool)
}

const (
	defaultDeadBandMeters = 7.0
	defaultOfflineAfter   = 480 * time.Second
	defaultFrameInterval  = 33 * time.Millisecond
)

// deviceState is the engine-internal record for one tracker. The animation
// handle lives here so a restart or teardown can always cancel the running
// task.
type deviceState struct {
	lastFix       models.Fix
	previousFix   *models.Fix
	rendered      models.Coordinate
	status        models.DeviceStatus
	lastUpdateMs  int64
	smoothedSpeed float64
	cancelAnim    context.CancelFunc
}

// Engine reconciles fixes from the live channel and the polling fallback
// into one device map. Reconcile holds the engine lock for its whole body:
// one batch is fully applied before the next message is processed.
type Engine struct {
	mu         sync.Mutex
	cal        motion.Calibration
	opts       Options
	registry   DeviceRegistry
	devices    map[string]*deviceState
	violations *violationSet
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// NewEngine builds the reconciliation engine.
func NewEngine(cal motion.Calibration, registry DeviceRegistry, logger *slog.Logger, opts Options) *Engine {
	if opts.DeadBandMeters <= 0 {
		opts.DeadBandMeters = defaultDeadBandMeters
	}
	if opts.OfflineAfter <= 0 {
		opts.OfflineAfter = defaultOfflineAfter
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = defaultFrameInterval
	}
	if opts.SpeedMultiplier <= 0 {
		opts.SpeedMultiplier = 1.0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cal:        cal,
		opts:       opts,
		registry:   registry,
		devices:    make(map[string]*deviceState),
		violations: newViolationSet(),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		now:        time.Now,
	}
}

// Reconcile merges a batch of fixes into the device map. Both transports
// (push channel and polling fallback) call this same path. Devices present
// in prior state but absent from the batch are retained with their last
// known position; only registry deactivation removes a device.
func (e *Engine) Reconcile(batch []models.Fix) {
	start := time.Now()
	defer observability.ObserveReconcileLatency(start)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, fix := range batch {
		if !fix.Valid() {
			observability.FixesRejected.WithLabelValues("invalid").Inc()
			e.logger.Debug("dropping invalid fix", "device", fix.DeviceID)
			continue
		}
		if !e.registry.IsActive(fix.DeviceID) {
			// Hard removal: the only case where a device leaves the map.
			if st, ok := e.devices[fix.DeviceID]; ok {
				e.stopAnimationLocked(st)
				delete(e.devices, fix.DeviceID)
			}
			observability.FixesRejected.WithLabelValues("deactivated").Inc()
			continue
		}
		e.applyFixLocked(fix)
	}

	e.refreshStatusLocked()
	observability.DevicesTracked.Set(float64(len(e.devices)))
}

func (e *Engine) applyFixLocked(fix models.Fix) {
	st, ok := e.devices[fix.DeviceID]
	if !ok {
		st = &deviceState{
			lastFix:      fix,
			rendered:     fix.Position(),
			lastUpdateMs: fix.TimestampMs,
		}
		st.status = e.deriveStatusLocked(fix.RawStatus, fix.TimestampMs)
		e.devices[fix.DeviceID] = st
		observability.FixesAccepted.Inc()
		return
	}

	if fix.TimestampMs < st.lastFix.TimestampMs {
		// Reject-older policy: a stale fix (late push delivery or poller
		// overlap) must not roll the track backwards.
		observability.FixesRejected.WithLabelValues("stale").Inc()
		return
	}

	displacement := geo.DistanceMeters(st.lastFix.Lat, st.lastFix.Lng, fix.Lat, fix.Lng)
	if displacement < e.opts.DeadBandMeters {
		// Dead-band: keep the rendered geometry, refresh everything else so
		// status and freshness never go stale.
		st.lastFix.TimestampMs = fix.TimestampMs
		st.lastFix.RawStatus = fix.RawStatus
		st.lastUpdateMs = fix.TimestampMs
		observability.FixesDeadBanded.Inc()
		return
	}

	prev := st.lastFix
	st.previousFix = &prev
	st.lastFix = fix
	st.lastUpdateMs = fix.TimestampMs
	observability.FixesAccepted.Inc()

	interval := fix.TimestampMs - prev.TimestampMs
	st.smoothedSpeed = e.cal.SmoothSpeed(st.smoothedSpeed, motion.ObservedSpeedMps(fix, &prev, interval))

	var predicted *models.Coordinate
	if p := motion.Predict(fix, &prev, interval, interval); p != fix.Position() {
		predicted = &p
	}

	e.startAnimationLocked(fix.DeviceID, st, predicted, interval)
}

// startAnimationLocked restarts the device's animation from wherever the
// marker currently is, guaranteeing visual continuity across mid-animation
// updates.
func (e *Engine) startAnimationLocked(deviceID string, st *deviceState, predicted *models.Coordinate, intervalMs int64) {
	e.stopAnimationLocked(st)

	anim := motion.Plan(e.cal, st.rendered, predicted, st.lastFix.Position(),
		intervalMs, st.smoothedSpeed, e.opts.SpeedMultiplier, e.now())

	ctx, cancel := context.WithCancel(e.ctx)
	st.cancelAnim = cancel
	e.wg.Add(1)
	go e.runAnimation(ctx, deviceID, anim)
}

func (e *Engine) stopAnimationLocked(st *deviceState) {
	if st.cancelAnim != nil {
		st.cancelAnim()
		st.cancelAnim = nil
	}
}

// runAnimation is the per-device animation task: one tick per display frame
// until the plan converges or the task is cancelled by a newer fix or
// engine teardown.
func (e *Engine) runAnimation(ctx context.Context, deviceID string, anim motion.Animation) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pos, done := anim.At(e.now())
			e.mu.Lock()
			st, ok := e.devices[deviceID]
			if ok {
				st.rendered = pos
			}
			e.mu.Unlock()
			if !ok || done {
				return
			}
		}
	}
}

// deriveStatusLocked prefers the status supplied by the upstream fix and
// falls back to age-based derivation.
func (e *Engine) deriveStatusLocked(raw string, lastUpdateMs int64) models.DeviceStatus {
	switch raw {
	case string(models.StatusOnline):
		return models.StatusOnline
	case string(models.StatusOffline):
		return models.StatusOffline
	}
	if lastUpdateMs <= 0 {
		return models.StatusUnknown
	}
	age := e.now().UnixMilli() - lastUpdateMs
	if age > e.opts.OfflineAfter.Milliseconds() {
		return models.StatusOffline
	}
	return models.StatusOnline
}

func (e *Engine) refreshStatusLocked() {
	for _, st := range e.devices {
		st.status = e.deriveStatusLocked(st.lastFix.RawStatus, st.lastUpdateMs)
	}
}

// OnViolation sets the violation transition callback. The push hub is built
// after the engine, so the callback is wired late.
func (e *Engine) OnViolation(fn func(deviceID string, violating bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opts.OnViolation = fn
}

// SetViolation records or clears a boundary violation for a device. The
// violation set is independent of position state: a device can be flagged
// before its first fix arrives. Transitions invoke the configured callback.
func (e *Engine) SetViolation(deviceID string, violating bool) {
	if deviceID == "" {
		return
	}
	e.mu.Lock()
	changed := e.violations.set(deviceID, violating)
	observability.DevicesViolating.Set(float64(e.violations.len()))
	cb := e.opts.OnViolation
	e.mu.Unlock()

	if changed && cb != nil {
		cb(deviceID, violating)
	}
}

// IsViolating reports whether the device is currently flagged.
func (e *Engine) IsViolating(deviceID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.violations.has(deviceID)
}

// Snapshot returns the drawable marker list, status recomputed from fix age
// at call time, sorted by device ID for stable output.
func (e *Engine) Snapshot() []models.Marker {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refreshStatusLocked()

	out := make([]models.Marker, 0, len(e.devices))
	for id, st := range e.devices {
		out = append(out, models.Marker{
			DeviceID:    id,
			Position:    st.rendered,
			Status:      st.status,
			IsViolating: e.violations.has(id),
			Display:     e.registry.Display(id),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// DeviceState returns a copy of the reconciled state for one device.
func (e *Engine) DeviceState(deviceID string) (models.DeviceState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.devices[deviceID]
	if !ok {
		return models.DeviceState{}, false
	}
	out := models.DeviceState{
		DeviceID:     deviceID,
		LastFix:      st.lastFix,
		Rendered:     st.rendered,
		Status:       st.status,
		LastUpdateMs: st.lastUpdateMs,
		IsViolating:  e.violations.has(deviceID),
	}
	if st.previousFix != nil {
		prev := *st.previousFix
		out.PreviousFix = &prev
	}
	return out, true
}

// DeviceCount returns the number of tracked devices.
func (e *Engine) DeviceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.devices)
}

// Close cancels every animation task and waits for them to exit. No timers
// survive teardown.
func (e *Engine) Close() {
	e.cancel()
	e.mu.Lock()
	for _, st := range e.devices {
		e.stopAnimationLocked(st)
	}
	e.mu.Unlock()
	e.wg.Wait()
}
