// Package live connects the engine to the upstream tracker feed: a
// persistent WebSocket channel with exponential-backoff reconnection, and a
// polling fallback used whenever the channel is down. Both transports feed
// the same reconciliation sink.
package live

import (
	"encoding/json"
	"fmt"

	"github.com/vessel-monitor/backend/internal/models"
)

// Sink receives decoded stream content. The track engine implements it;
// push and poll share this one path so the two transports can never diverge
// in state handling.
type Sink interface {
	Reconcile(batch []models.Fix)
	SetViolation(deviceID string, violating bool)
}

// Stream message types emitted by the tracker gateway.
const (
	msgTypeGPSUpdate      = "gps_update"
	msgTypeInitialData    = "initial_data"
	msgTypeViolation      = "boundary_notification"
	msgTypeViolationClear = "violation_cleared"
)

// Message is the decoded form of one stream envelope.
type Message interface{ messageType() string }

// PositionBatch carries a batch of fixes. Initial marks the full snapshot
// sent on connect.
type PositionBatch struct {
	Fixes   []models.Fix
	Initial bool
}

// ViolationNotice flags a device as boundary-violating.
type ViolationNotice struct {
	DeviceID string
	Reason   string
}

// ViolationClear lifts a violation flag.
type ViolationClear struct {
	DeviceID string
}

// Unknown is any envelope whose type this build does not understand. It is
// logged and dropped, never an error.
type Unknown struct {
	Type string
}

func (PositionBatch) messageType() string   { return "position_batch" }
func (ViolationNotice) messageType() string { return "violation_notice" }
func (ViolationClear) messageType() string  { return "violation_clear" }
func (Unknown) messageType() string         { return "unknown" }

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// featureCollection is the position payload shape shared by the live
// transport and the polling endpoint.
type featureCollection struct {
	Features []models.Fix `json:"features"`
}

type violationPayload struct {
	DeviceID string `json:"deviceId"`
	Reason   string `json:"reason,omitempty"`
}

// DecodeMessage parses one stream envelope into the message union. A
// malformed envelope is an error (the caller drops it); an unrecognized
// type decodes to Unknown.
func DecodeMessage(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	switch env.Type {
	case msgTypeGPSUpdate, msgTypeInitialData:
		var fc featureCollection
		if err := json.Unmarshal(env.Data, &fc); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		return PositionBatch{Fixes: fc.Features, Initial: env.Type == msgTypeInitialData}, nil
	case msgTypeViolation:
		var p violationPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed violation payload: %w", err)
		}
		return ViolationNotice{DeviceID: p.DeviceID, Reason: p.Reason}, nil
	case msgTypeViolationClear:
		var p violationPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("malformed violation clear payload: %w", err)
		}
		return ViolationClear{DeviceID: p.DeviceID}, nil
	default:
		return Unknown{Type: env.Type}, nil
	}
}

// DecodeFeatureCollection parses the bare position payload returned by the
// polling endpoint.
func DecodeFeatureCollection(data []byte) ([]models.Fix, error) {
	var fc featureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("malformed feature collection: %w", err)
	}
	return fc.Features, nil
}
