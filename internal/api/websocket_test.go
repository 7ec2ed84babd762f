package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vessel-monitor/backend/internal/observability"
)

func hubFixture(t *testing.T, interval time.Duration) (*Hub, *httptest.Server) {
	t.Helper()
	tracker, _, _ := fixture()
	hub := NewHub(tracker, interval, observability.NewLogger("error"))

	e := echo.New()
	e.GET("/api/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubSendsInitialSnapshot(t *testing.T) {
	_, srv := hubFixture(t, time.Hour)
	conn := dialHub(t, srv)

	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeConnected, msg.Type)

	var frame MarkerFrame
	require.NoError(t, json.Unmarshal(msg.Payload, &frame))
	assert.Len(t, frame.Vessels, 2)
	assert.Equal(t, "BB-1", frame.Vessels[0].DeviceID)
}

func TestHubBroadcastsMarkerFrames(t *testing.T) {
	hub, srv := hubFixture(t, 20*time.Millisecond)
	conn := dialHub(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Skip the initial snapshot, then expect periodic frames.
	readMessage(t, conn)
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeMarkers, msg.Type)
}

func TestHubNotifyViolation(t *testing.T) {
	hub, srv := hubFixture(t, time.Hour)
	conn := dialHub(t, srv)

	readMessage(t, conn) // initial snapshot

	// The client registers before the first read returns; notify after the
	// snapshot arrived so the hub definitely has the client.
	hub.NotifyViolation("BB-2", true)

	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeViolation, msg.Type)

	var event ViolationEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, "BB-2", event.DeviceID)
	assert.True(t, event.Violating)
}

func TestHubDropsDisconnectedClients(t *testing.T) {
	hub, srv := hubFixture(t, time.Hour)
	conn := dialHub(t, srv)

	readMessage(t, conn)
	assert.Equal(t, 1, hub.ClientCount())

	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("client was never dropped after disconnect")
}
