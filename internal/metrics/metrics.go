// Package metrics exposes the router daemon's process-internal counters
// (spec.md SPEC_FULL.md §2, component H) via Prometheus, in the style of
// the reference embedded-bus-bridge daemon's internal/metrics package:
// package-level promauto collectors plus small Inc*/Add* wrapper
// functions so call sites never touch the prometheus API directly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesRouted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cand_frames_routed_total",
		Help: "Total CAN frames routed to a registered sink.",
	})
	AcksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cand_acks_sent_total",
		Help: "Total acknowledgement frames synthesised and written.",
	})
	CRCFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cand_crc_failures_total",
		Help: "Total fragment reassemblies that failed CRC validation.",
	})
	RetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cand_retry_attempts_total",
		Help: "Total retry attempts issued by the client reliability layer.",
	})
	DroppedChannels = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cand_dropped_channels_total",
		Help: "Total registered channels dropped because their sink could not be written to.",
	})
	RegisteredChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cand_registered_channels",
		Help: "Current number of occupied registration table cells.",
	})
	CANReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cand_can_read_errors_total",
		Help: "Total CAN device read errors (never fatal to the event loop).",
	})
)

// StartHTTP serves the metrics registry at /metrics on addr. It is only
// started when the daemon is configured with a metrics address; a
// device with no observability budget pays nothing for this package.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
