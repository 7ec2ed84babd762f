package live

import (
	"testing"
)

func TestDecodePositionBatch(t *testing.T) {
	data := []byte(`{
		"type": "gps_update",
		"data": {"features": [
			{"deviceId": "BB-1", "lat": 16.0, "lng": 120.0, "timestamp": 1700000000000, "status": "online"},
			{"deviceId": "BB-2", "lat": 15.5, "lng": 119.5, "timestamp": 1700000001000}
		]}
	}`)

	msg, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	batch, ok := msg.(PositionBatch)
	if !ok {
		t.Fatalf("Expected PositionBatch, got %T", msg)
	}
	if batch.Initial {
		t.Error("Expected gps_update not to be marked initial")
	}
	if len(batch.Fixes) != 2 {
		t.Fatalf("Expected 2 fixes, got %d", len(batch.Fixes))
	}
	if batch.Fixes[0].DeviceID != "BB-1" || batch.Fixes[0].TimestampMs != 1700000000000 {
		t.Errorf("Unexpected first fix: %+v", batch.Fixes[0])
	}
	if batch.Fixes[0].RawStatus != "online" {
		t.Errorf("Expected upstream status carried, got %q", batch.Fixes[0].RawStatus)
	}
}

func TestDecodeInitialData(t *testing.T) {
	data := []byte(`{"type": "initial_data", "data": {"features": []}}`)
	msg, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	batch, ok := msg.(PositionBatch)
	if !ok || !batch.Initial {
		t.Errorf("Expected initial PositionBatch, got %#v", msg)
	}
}

func TestDecodeViolationEvents(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type": "boundary_notification", "data": {"deviceId": "BB-7", "reason": "idle outside municipality"}}`))
	if err != nil {
		t.Fatalf("Failed to decode notice: %v", err)
	}
	notice, ok := msg.(ViolationNotice)
	if !ok || notice.DeviceID != "BB-7" || notice.Reason == "" {
		t.Errorf("Unexpected notice: %#v", msg)
	}

	msg, err = DecodeMessage([]byte(`{"type": "violation_cleared", "data": {"deviceId": "BB-7"}}`))
	if err != nil {
		t.Fatalf("Failed to decode clear: %v", err)
	}
	if clear, ok := msg.(ViolationClear); !ok || clear.DeviceID != "BB-7" {
		t.Errorf("Unexpected clear: %#v", msg)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type": "weather_report", "data": {}}`))
	if err != nil {
		t.Fatalf("Unknown types should not error: %v", err)
	}
	if u, ok := msg.(Unknown); !ok || u.Type != "weather_report" {
		t.Errorf("Expected Unknown{weather_report}, got %#v", msg)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := DecodeMessage([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed envelope")
	}
	if _, err := DecodeMessage([]byte(`{"type": "gps_update", "data": 42}`)); err == nil {
		t.Error("Expected error for malformed payload")
	}
}

func TestDecodeFeatureCollection(t *testing.T) {
	fixes, err := DecodeFeatureCollection([]byte(`{"features": [{"deviceId": "BB-1", "lat": 1, "lng": 2, "timestamp": 3}]}`))
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(fixes) != 1 || fixes[0].DeviceID != "BB-1" {
		t.Errorf("Unexpected fixes: %+v", fixes)
	}

	if _, err := DecodeFeatureCollection([]byte(`[]`)); err == nil {
		t.Error("Expected error for non-object payload")
	}
}
