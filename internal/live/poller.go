package live

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/vessel-monitor/backend/internal/observability"
)

// ChannelStater exposes the push channel state to the poller.
type ChannelStater interface {
	State() State
}

// DefaultPollInterval is the fallback polling period.
const DefaultPollInterval = 5 * time.Second

// Poller is the pull fallback: while the push channel is not connected it
// fetches the full device snapshot on a fixed interval and merges it
// through the same sink as push messages.
type Poller struct {
	url      string
	interval time.Duration
	client   *http.Client
	channel  ChannelStater
	sink     Sink
	logger   *slog.Logger
}

// NewPoller builds the fallback poller against the snapshot endpoint.
func NewPoller(url string, interval time.Duration, channel ChannelStater, sink Sink, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		channel:  channel,
		sink:     sink,
		logger:   logger,
	}
}

// Run polls until the context is cancelled. Ticks while the channel is
// connected are skipped: polling and push are mutually exclusive triggers.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.channel.State() == StateConnected {
				continue
			}
			if err := p.poll(ctx); err != nil {
				observability.PollErrors.Inc()
				p.logger.Warn("snapshot poll failed", "error", err)
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	observability.Polls.Inc()

	cctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot http status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fixes, err := DecodeFeatureCollection(body)
	if err != nil {
		return err
	}
	p.sink.Reconcile(fixes)
	return nil
}
