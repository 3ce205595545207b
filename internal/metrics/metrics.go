// Package metrics exposes the engine's Prometheus counters and a small
// HTTP server for /metrics and /health, following the same
// promauto-package-level-vars-plus-Record-helpers shape the teacher
// service uses for its own metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Per-feed counters required by spec §4.4's observability contract.
var (
	FramesIn = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdengine_frames_in_total",
			Help: "Total number of raw frames received from a feed's transport",
		},
		[]string{"exchange", "instrument_type"},
	)

	FramesDecoded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdengine_frames_decoded_total",
			Help: "Total number of frames decoded without error (quotes, heartbeats, acks and ignored frames)",
		},
		[]string{"exchange", "instrument_type"},
	)

	FramesInvariantRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdengine_frames_invariant_rejected_total",
			Help: "Total number of decoded quotes dropped for violating store invariants",
		},
		[]string{"exchange", "instrument_type"},
	)

	FramesDecodeErr = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdengine_frames_decode_err_total",
			Help: "Total number of frames dropped due to a decode error",
		},
		[]string{"exchange", "instrument_type"},
	)

	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdengine_reconnects_total",
			Help: "Total number of times a feed re-entered Connecting after Backoff",
		},
		[]string{"exchange", "instrument_type"},
	)

	LastFrameTsNs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mdengine_last_frame_ts_ns",
			Help: "Host receive timestamp (ns) of the last frame seen by a feed",
		},
		[]string{"exchange", "instrument_type"},
	)

	FeedState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mdengine_feed_state",
			Help: "Current supervisor state for a feed (enumerated, see supervisor.State)",
		},
		[]string{"exchange", "instrument_type"},
	)

	BackoffSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mdengine_backoff_seconds",
			Help: "Current reconnect backoff delay for a feed",
		},
		[]string{"exchange", "instrument_type"},
	)

	MirrorPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdengine_mirror_publish_errors_total",
			Help: "Total number of errors publishing to the optional Redis mirror",
		},
		[]string{"channel"},
	)
)

// RecordFrame bumps frames_in and, when decodeErr is non-nil, decode_err;
// otherwise it bumps frames_decoded.
func RecordFrame(exchange, instrumentType string, decodeErr error) {
	FramesIn.WithLabelValues(exchange, instrumentType).Inc()
	if decodeErr != nil {
		FramesDecodeErr.WithLabelValues(exchange, instrumentType).Inc()
		return
	}
	FramesDecoded.WithLabelValues(exchange, instrumentType).Inc()
}

// RecordInvariantRejected bumps frames_invariant_rejected for a decoded
// quote the store refused to store.
func RecordInvariantRejected(exchange, instrumentType string) {
	FramesInvariantRejected.WithLabelValues(exchange, instrumentType).Inc()
}

// RecordReconnect bumps the reconnect counter for a feed.
func RecordReconnect(exchange, instrumentType string) {
	Reconnects.WithLabelValues(exchange, instrumentType).Inc()
}

// RecordLastFrame sets the last-frame gauge to tsNs.
func RecordLastFrame(exchange, instrumentType string, tsNs uint64) {
	LastFrameTsNs.WithLabelValues(exchange, instrumentType).Set(float64(tsNs))
}

// RecordFeedState sets the feed-state gauge to the enumerated state value.
func RecordFeedState(exchange, instrumentType string, state int) {
	FeedState.WithLabelValues(exchange, instrumentType).Set(float64(state))
}

// RecordBackoff sets the current backoff delay gauge in seconds.
func RecordBackoff(exchange, instrumentType string, seconds float64) {
	BackoffSeconds.WithLabelValues(exchange, instrumentType).Set(seconds)
}

// Server wraps a Prometheus /metrics and /health HTTP endpoint.
type Server struct {
	addr   string
	server *http.Server
}

// NewServer builds a metrics server bound to addr; it is not started
// until Start is called.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		addr:   addr,
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

// Handler returns the underlying http.Handler, for embedding in a
// caller-owned mux instead of running Start's own listener.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the metrics server; it blocks until Stop is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("starting metrics server")
	return s.server.ListenAndServe()
}

// Stop closes the metrics server.
func (s *Server) Stop() error {
	return s.server.Close()
}
