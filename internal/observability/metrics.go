package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StreamMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_stream_messages_total",
		Help: "Live channel messages received, by message type",
	}, []string{"type"})
	StreamDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_stream_drops_total",
		Help: "Malformed or unknown live channel messages dropped",
	})
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_stream_reconnects_total",
		Help: "Reconnection attempts against the live channel",
	})
	Polls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_poll_requests_total",
		Help: "Fallback snapshot polls issued while the channel is down",
	})
	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_poll_errors_total",
		Help: "Fallback snapshot polls that failed",
	})
	FixesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_fixes_accepted_total",
		Help: "Fixes accepted as new confirmed positions",
	})
	FixesDeadBanded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vessel_fixes_deadbanded_total",
		Help: "Fixes whose displacement fell inside the dead-band",
	})
	FixesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_fixes_rejected_total",
		Help: "Fixes dropped before reconciliation, by reason",
	}, []string{"reason"})
	DevicesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vessel_devices_tracked",
		Help: "Devices currently held in the reconciliation map",
	})
	DevicesViolating = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vessel_devices_violating",
		Help: "Devices currently flagged as boundary-violating",
	})
	ReconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vessel_reconcile_latency_seconds",
		Help:    "Latency of one reconciliation batch",
		Buckets: prometheus.DefBuckets,
	})
)

// ObserveReconcileLatency records the elapsed time of a reconcile call.
func ObserveReconcileLatency(start time.Time) {
	ReconcileLatency.Observe(time.Since(start).Seconds())
}
