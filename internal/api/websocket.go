package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/vessel-monitor/backend/internal/models"
)

// Server -> client message types for the map surface protocol.
const (
	MsgTypeConnected = "connected"
	MsgTypeMarkers   = "markers"
	MsgTypeViolation = "violation"
)

// WSMessage is the envelope pushed to map surfaces.
type WSMessage struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// MarkerFrame carries one broadcast tick worth of marker positions.
type MarkerFrame struct {
	Vessels []models.Marker `json:"vessels"`
}

// ViolationEvent notifies surfaces that a vessel entered or left a
// restricted-zone violation.
type ViolationEvent struct {
	DeviceID  string `json:"deviceId"`
	Violating bool   `json:"violating"`
}

// wsClient is one connected map surface. Writes go through the send channel
// so the broadcast loop never blocks on a slow client.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans marker frames out to connected map surfaces at a fixed interval
// and pushes violation toasts as they happen.
type Hub struct {
	tracker  Tracker
	interval time.Duration
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// NewHub creates the broadcast hub. interval is how often marker frames are
// pushed to every client.
func NewHub(tracker Tracker, interval time.Duration, logger *slog.Logger) *Hub {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Hub{
		tracker:  tracker,
		interval: interval,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		clients: make(map[string]*wsClient),
	}
}

// Run drives the broadcast loop until ctx is cancelled. Frames are only
// built when at least one client is connected.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			h.broadcastFrame()
		}
	}
}

// HandleWebSocket upgrades the connection and streams marker frames until
// the client goes away.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	h.logger.Info("surface connected", "client", client.id)

	go h.writePump(client)

	// Initial snapshot so the surface renders before the first tick.
	h.sendTo(client, MsgTypeConnected, MarkerFrame{Vessels: h.tracker.Snapshot()})

	// Read loop exists only to detect the close handshake.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.drop(client)
	h.logger.Info("surface disconnected", "client", client.id)
	return nil
}

// NotifyViolation pushes a violation toast to every connected surface.
// Wired as the tracking engine's violation callback.
func (h *Hub) NotifyViolation(deviceID string, violating bool) {
	h.broadcast(MsgTypeViolation, ViolationEvent{DeviceID: deviceID, Violating: violating})
}

// ClientCount returns the number of connected surfaces.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcastFrame() {
	h.broadcast(MsgTypeMarkers, MarkerFrame{Vessels: h.tracker.Snapshot()})
}

func (h *Hub) broadcast(msgType string, payload interface{}) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		h.logger.Error("failed to encode frame", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow client: skip this frame rather than stall the hub.
		}
	}
}

func (h *Hub) sendTo(client *wsClient, msgType string, payload interface{}) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		h.logger.Error("failed to encode frame", "type", msgType, "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) writePump(client *wsClient) {
	for data := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	client.conn.Close()
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.id]; ok {
		delete(h.clients, client.id)
		close(client.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
}

func encodeMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
	})
}
