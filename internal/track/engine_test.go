package track

import (
	"sync"
	"testing"
	"time"

	"github.com/vessel-monitor/backend/internal/geo"
	"github.com/vessel-monitor/backend/internal/models"
	"github.com/vessel-monitor/backend/internal/motion"
	"github.com/vessel-monitor/backend/internal/observability"
)

// stubRegistry marks listed devices as deactivated; everything else active.
type stubRegistry struct {
	inactive map[string]bool
}

func (s *stubRegistry) IsActive(id string) bool { return !s.inactive[id] }
func (s *stubRegistry) Display(id string) models.DisplayDetails {
	return models.DisplayDetails{Name: "FB " + id}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.FrameInterval == 0 {
		opts.FrameInterval = 5 * time.Millisecond
	}
	e := NewEngine(motion.DefaultCalibration(), &stubRegistry{inactive: map[string]bool{"LOST": true}},
		observability.NewLogger("error"), opts)
	t.Cleanup(e.Close)
	return e
}

func fix(id string, lat, lng float64, ts int64) models.Fix {
	return models.Fix{DeviceID: id, Lat: lat, Lng: lng, TimestampMs: ts}
}

func TestReconcileCreatesDeviceOnFirstFix(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	e.Reconcile([]models.Fix{fix("D1", 16.0, 120.0, now)})

	st, ok := e.DeviceState("D1")
	if !ok {
		t.Fatal("Expected device state after first fix")
	}
	if st.Rendered != (models.Coordinate{Lat: 16.0, Lng: 120.0}) {
		t.Errorf("Expected rendered position at fix, got %+v", st.Rendered)
	}
	if st.Status != models.StatusOnline {
		t.Errorf("Expected online status for fresh fix, got %s", st.Status)
	}
	if st.PreviousFix != nil {
		t.Error("Expected no previous fix on first sighting")
	}
}

func TestReconcileDeadBandKeepsRenderedPosition(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	e.Reconcile([]models.Fix{fix("D1", 16.0, 120.0, now-60000)})
	before, _ := e.DeviceState("D1")

	// ~4.4m displacement, inside the 7m dead-band.
	e.Reconcile([]models.Fix{fix("D1", 16.00004, 120.0, now)})

	after, _ := e.DeviceState("D1")
	if after.Rendered != before.Rendered {
		t.Errorf("Expected rendered position unchanged inside dead-band: %+v vs %+v", after.Rendered, before.Rendered)
	}
	if after.LastUpdateMs != now {
		t.Errorf("Expected metadata refresh, lastUpdateMs = %d", after.LastUpdateMs)
	}
	if after.PreviousFix != nil {
		t.Error("Expected dead-banded fix not to shift the confirmed fix")
	}
}

func TestReconcileAcceptsDisplacedFix(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	e.Reconcile([]models.Fix{fix("D1", 16.0, 120.0, now-60000)})
	e.Reconcile([]models.Fix{fix("D1", 16.0050, 120.0050, now)})

	st, _ := e.DeviceState("D1")
	if st.PreviousFix == nil {
		t.Fatal("Expected previous fix to be retained for velocity computation")
	}
	if st.PreviousFix.Lat != 16.0 || st.PreviousFix.Lng != 120.0 {
		t.Errorf("Expected previous fix at old position, got %+v", st.PreviousFix)
	}
	if st.LastFix.Lat != 16.0050 {
		t.Errorf("Expected confirmed fix at new position, got %+v", st.LastFix)
	}
}

func TestAnimationConvergesOnTarget(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()
	target := models.Coordinate{Lat: 16.0050, Lng: 120.0050}

	e.Reconcile([]models.Fix{fix("D1", 16.0, 120.0, now-60000)})
	e.Reconcile([]models.Fix{fix("D1", target.Lat, target.Lng, now)})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, _ := e.DeviceState("D1")
		if st.Rendered == target {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	st, _ := e.DeviceState("D1")
	t.Errorf("Animation did not converge on %+v, rendered %+v", target, st.Rendered)
}

func TestAnimationMovesThroughIntermediatePositions(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	e.Reconcile([]models.Fix{fix("D1", 16.0, 120.0, now-60000)})
	e.Reconcile([]models.Fix{fix("D1", 16.0050, 120.0050, now)})

	// Shortly after the update the marker should have left the start but not
	// yet teleported to the target.
	time.Sleep(100 * time.Millisecond)
	st, _ := e.DeviceState("D1")
	dStart := geo.DistanceMeters(16.0, 120.0, st.Rendered.Lat, st.Rendered.Lng)
	dTarget := geo.DistanceMeters(16.0050, 120.0050, st.Rendered.Lat, st.Rendered.Lng)
	if dStart == 0 {
		t.Error("Expected marker to have started moving")
	}
	if dTarget == 0 {
		t.Error("Expected marker not to jump straight to the target")
	}
}

func TestReconcileRejectsOlderTimestamp(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	e.Reconcile([]models.Fix{fix("D2", 16.0, 120.0, now)})
	e.Reconcile([]models.Fix{fix("D2", 16.1, 120.1, now-50)})

	st, _ := e.DeviceState("D2")
	if st.LastFix.Lat != 16.0 || st.LastFix.TimestampMs != now {
		t.Errorf("Expected older fix to be rejected, state %+v", st.LastFix)
	}
}

func TestOfflineDevicesAreRetained(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	// D1 last reported 10 minutes ago; D2 is fresh.
	e.Reconcile([]models.Fix{fix("D1", 16.0, 120.0, now-600000)})
	e.Reconcile([]models.Fix{fix("D2", 15.0, 119.0, now)})

	if e.DeviceCount() != 2 {
		t.Fatalf("Expected both devices retained, got %d", e.DeviceCount())
	}

	st, ok := e.DeviceState("D1")
	if !ok {
		t.Fatal("Expected silent device to remain visible")
	}
	if st.Status != models.StatusOffline {
		t.Errorf("Expected silent device derived offline, got %s", st.Status)
	}
	if st.Rendered != (models.Coordinate{Lat: 16.0, Lng: 120.0}) {
		t.Errorf("Expected last known position preserved, got %+v", st.Rendered)
	}
}

func TestUpstreamStatusPreferred(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	f := fix("D1", 16.0, 120.0, now)
	f.RawStatus = "offline"
	e.Reconcile([]models.Fix{f})

	st, _ := e.DeviceState("D1")
	if st.Status != models.StatusOffline {
		t.Errorf("Expected upstream status to win over age derivation, got %s", st.Status)
	}
}

func TestDeactivatedDeviceIsRemoved(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	e.Reconcile([]models.Fix{fix("LOST", 16.0, 120.0, now)})
	if e.DeviceCount() != 0 {
		t.Error("Expected deactivated device to be filtered out")
	}
}

func TestInvalidFixDropped(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	e.Reconcile([]models.Fix{
		{DeviceID: "D1", Lat: 16.0, Lng: 120.0, TimestampMs: now},
	})
	before, _ := e.DeviceState("D1")

	nan := fix("D1", 16.1, 120.1, now+1000)
	nan.Lat = nanValue()
	e.Reconcile([]models.Fix{nan, {Lat: 16.0, Lng: 120.0, TimestampMs: now}})

	after, _ := e.DeviceState("D1")
	if after.LastFix != before.LastFix {
		t.Errorf("Expected device state unchanged after invalid fix, got %+v", after.LastFix)
	}
	if e.DeviceCount() != 1 {
		t.Errorf("Expected fix without device ID to be dropped, count %d", e.DeviceCount())
	}
}

func TestViolationSetIndependentOfPosition(t *testing.T) {
	var mu sync.Mutex
	var transitions []string
	e := newTestEngine(t, Options{
		OnViolation: func(id string, violating bool) {
			mu.Lock()
			defer mu.Unlock()
			if violating {
				transitions = append(transitions, id+":on")
			} else {
				transitions = append(transitions, id+":off")
			}
		},
	})
	now := time.Now().UnixMilli()

	// A violation can arrive before any fix for the device.
	e.SetViolation("D9", true)
	if !e.IsViolating("D9") {
		t.Error("Expected violation flag before first fix")
	}

	e.Reconcile([]models.Fix{fix("D9", 16.0, 120.0, now)})
	snap := e.Snapshot()
	if len(snap) != 1 || !snap[0].IsViolating {
		t.Errorf("Expected violating marker, got %+v", snap)
	}
	if snap[0].Status != models.StatusOnline {
		t.Errorf("Expected device online and violating simultaneously, got %s", snap[0].Status)
	}

	// Duplicate notifications do not re-fire the callback.
	e.SetViolation("D9", true)
	e.SetViolation("D9", false)
	if e.IsViolating("D9") {
		t.Error("Expected violation cleared")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || transitions[0] != "D9:on" || transitions[1] != "D9:off" {
		t.Errorf("Expected one on/off transition pair, got %v", transitions)
	}
}

func TestSnapshotSortedWithDisplayMetadata(t *testing.T) {
	e := newTestEngine(t, Options{})
	now := time.Now().UnixMilli()

	e.Reconcile([]models.Fix{
		fix("B", 16.0, 120.0, now),
		fix("A", 15.0, 119.0, now),
	})

	snap := e.Snapshot()
	if len(snap) != 2 || snap[0].DeviceID != "A" || snap[1].DeviceID != "B" {
		t.Fatalf("Expected sorted snapshot, got %+v", snap)
	}
	if snap[0].Display.Name != "FB A" {
		t.Errorf("Expected registry display metadata, got %+v", snap[0].Display)
	}
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}
