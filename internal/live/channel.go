package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vessel-monitor/backend/internal/models"
	"github.com/vessel-monitor/backend/internal/observability"
)

// State is the channel's connection state machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Reconnect backoff bounds.
const (
	backoffBaseMs = 1000
	backoffCapMs  = 30000
)

// BackoffDelay returns the reconnect delay for the given attempt count:
// min(1000 * 2^attempts, 30000) ms.
func BackoffDelay(attempts int) time.Duration {
	ms := int64(backoffBaseMs)
	for i := 0; i < attempts; i++ {
		ms *= 2
		if ms >= backoffCapMs {
			return backoffCapMs * time.Millisecond
		}
	}
	return time.Duration(ms) * time.Millisecond
}

// Channel maintains the persistent push connection to the tracker gateway.
// It reconnects with exponential backoff, suspends reconnection while the
// consuming surface is hidden, and dispatches decoded messages into the
// sink. Connect is idempotent; Close tears everything down and no timer
// survives it.
type Channel struct {
	url    string
	sink   Sink
	logger *slog.Logger
	dialer *websocket.Dialer

	mu       sync.Mutex
	state    State
	attempts int
	lastErr  error
	conn     *websocket.Conn
	running  bool
	cancel   context.CancelFunc
	visible  bool

	// wake nudges the run loop out of a visibility wait.
	wake chan struct{}
	done chan struct{}
}

// NewChannel builds a channel against the given WebSocket URL.
func NewChannel(url string, sink Sink, logger *slog.Logger) *Channel {
	return &Channel{
		url:     url,
		sink:    sink,
		logger:  logger,
		dialer:  websocket.DefaultDialer,
		visible: true,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Connect starts the connection loop. Calling it while the channel is
// already connecting or connected is a no-op.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx)
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	for {
		if ctx.Err() != nil {
			return
		}
		if !c.waitVisible(ctx) {
			return
		}

		c.setState(StateConnecting)
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.connectionLost(err)
			if !c.sleepBackoff(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.attempts = 0
		c.lastErr = nil
		c.state = StateConnected
		c.mu.Unlock()
		c.logger.Info("live channel connected", "url", c.url)

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if !c.sleepBackoff(ctx) {
			return
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Warn("live channel read error", "error", err)
				}
				c.connectionLost(err)
			}
			conn.Close()
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) dispatch(data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		observability.StreamDrops.Inc()
		c.logger.Warn("dropping malformed stream message", "error", err)
		return
	}

	switch m := msg.(type) {
	case PositionBatch:
		if m.Initial {
			observability.StreamMessages.WithLabelValues("initial_data").Inc()
		} else {
			observability.StreamMessages.WithLabelValues("gps_update").Inc()
		}
		c.sink.Reconcile(m.Fixes)
	case ViolationNotice:
		observability.StreamMessages.WithLabelValues("boundary_notification").Inc()
		c.sink.SetViolation(m.DeviceID, true)
	case ViolationClear:
		observability.StreamMessages.WithLabelValues("violation_cleared").Inc()
		c.sink.SetViolation(m.DeviceID, false)
	case Unknown:
		observability.StreamDrops.Inc()
		c.logger.Warn("dropping unknown stream message", "type", m.Type)
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Channel) connectionLost(err error) {
	c.mu.Lock()
	c.state = StateDisconnected
	c.lastErr = err
	c.mu.Unlock()
}

// sleepBackoff waits the exponential backoff delay for the current attempt
// count. Returns false when the context is cancelled.
func (c *Channel) sleepBackoff(ctx context.Context) bool {
	c.mu.Lock()
	delay := BackoffDelay(c.attempts)
	c.attempts++
	c.mu.Unlock()

	observability.Reconnects.Inc()
	c.logger.Info("live channel reconnect scheduled", "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// waitVisible blocks while the consuming surface is hidden. Reconnection is
// skipped while backgrounded and resumes immediately on visibility.
func (c *Channel) waitVisible(ctx context.Context) bool {
	for {
		c.mu.Lock()
		visible := c.visible
		c.mu.Unlock()
		if visible {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-c.wake:
		}
	}
}

// SetVisible reports whether the consuming map surface is visible. Hiding
// it pauses reconnection; showing it resumes the loop at once.
func (c *Channel) SetVisible(visible bool) {
	c.mu.Lock()
	c.visible = visible
	c.mu.Unlock()
	if visible {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnect attempt counter.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Status maps the FSM onto the UI-facing connection status enum.
func (c *Channel) Status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.state == StateConnected:
		return models.ConnectionConnected
	case c.lastErr != nil:
		return models.ConnectionError
	default:
		return models.ConnectionDisconnected
	}
}

// Close stops the loop, cancels any pending reconnect timer, and closes the
// connection with a normal-closure code. Safe to call once.
func (c *Channel) Close() {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.running = false
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	}
	if cancel != nil {
		cancel()
		<-c.done
	}
}
