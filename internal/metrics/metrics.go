// Package metrics exposes Prometheus counters/histograms/gauges for
// every pipeline stage (spec §C "Prometheus metrics surface" — the base
// spec's Non-goals don't exclude observability, so this is carried the
// way the teacher carries it for every stage of its pipeline) plus a
// liveness/health endpoint.
//
// Grounded on the teacher's internal/metrics/metrics.go almost
// directly: same Metrics-struct-plus-MustRegister shape, same
// HealthStatus/Server pairing for /healthz and /metrics, with field
// names and checked dependencies swapped from mdengine's Redis/SQLite/
// TF-builder/reorder-buffer pipeline to this domain's feed/aggregator/
// signal-engine/win-loss pipeline.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric for the signal pipeline.
type Metrics struct {
	TicksTotal        prometheus.Counter
	TicksDroppedTotal prometheus.Counter
	CandlesClosedTotal *prometheus.CounterVec // labels: tf

	IndicatorComputeDur prometheus.Histogram
	PatternComputeDur   prometheus.Histogram
	FeatureComputeDur   prometheus.Histogram
	MLPredictDur        prometheus.Histogram
	BrainAggregateDur   prometheus.Histogram
	SignalGenerateDur   prometheus.Histogram

	SignalsGeneratedTotal *prometheus.CounterVec // labels: direction
	SignalsNoTradeTotal   prometheus.Counter

	FanoutDropsTotal *prometheus.CounterVec // labels: stream

	ActiveSessions          prometheus.Gauge
	SessionsStartedTotal    prometheus.Counter
	SessionsStoppedTotal    prometheus.Counter

	WinLossResolvedTotal *prometheus.CounterVec // labels: outcome
	VolatilityWarningsTotal prometheus.Counter

	FeedReconnectsTotal prometheus.Counter
	FeedTerminalTotal   prometheus.Counter

	SnapshotSaveDur prometheus.Histogram
}

// NewMetrics registers and returns every Prometheus metric.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_ticks_total",
			Help: "Total ticks received from the feed",
		}),
		TicksDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_ticks_dropped_total",
			Help: "Ticks dropped as invalid (non-positive or non-finite price)",
		}),
		CandlesClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_candles_closed_total",
			Help: "Total candles closed, by timeframe",
		}, []string{"tf"}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_indicator_compute_duration_seconds",
			Help:    "IndicatorEngine compute latency per closed candle",
			Buckets: prometheus.DefBuckets,
		}),
		PatternComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_pattern_compute_duration_seconds",
			Help:    "PatternEngine compute latency per closed candle",
			Buckets: prometheus.DefBuckets,
		}),
		FeatureComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_feature_compute_duration_seconds",
			Help:    "FeatureExtractor compute latency per closed candle",
			Buckets: prometheus.DefBuckets,
		}),
		MLPredictDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_ml_predict_duration_seconds",
			Help:    "MLEnsemble predict latency per closed candle",
			Buckets: prometheus.DefBuckets,
		}),
		BrainAggregateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_brain_aggregate_duration_seconds",
			Help:    "AdvancedBrain vote-aggregation latency per closed candle",
			Buckets: prometheus.DefBuckets,
		}),
		SignalGenerateDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_signal_generate_duration_seconds",
			Help:    "End-to-end SignalEngine.Generate latency",
			Buckets: prometheus.DefBuckets,
		}),

		SignalsGeneratedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_signals_generated_total",
			Help: "Signals generated, by direction (CALL, PUT, NO_TRADE)",
		}, []string{"direction"}),
		SignalsNoTradeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_signals_no_trade_total",
			Help: "Signals resolved to NO_TRADE by post-filtering",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_fanout_drops_total",
			Help: "Events dropped by a bus FanOut due to a full subscriber channel",
		}, []string{"stream"}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalbot_active_sessions",
			Help: "Currently active chat sessions",
		}),
		SessionsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_sessions_started_total",
			Help: "Total sessions started",
		}),
		SessionsStoppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_sessions_stopped_total",
			Help: "Total sessions stopped",
		}),

		WinLossResolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_winloss_resolved_total",
			Help: "Pending signals resolved, by outcome (WIN, LOSS)",
		}, []string{"outcome"}),
		VolatilityWarningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_volatility_warnings_total",
			Help: "In-session volatility warnings published",
		}),

		FeedReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_feed_reconnects_total",
			Help: "Feed WebSocket reconnection attempts",
		}),
		FeedTerminalTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_feed_terminal_total",
			Help: "Times the feed exhausted its reconnect attempts",
		}),

		SnapshotSaveDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_snapshot_save_duration_seconds",
			Help:    "Checkpoint save latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.TicksDroppedTotal,
		m.CandlesClosedTotal,
		m.IndicatorComputeDur,
		m.PatternComputeDur,
		m.FeatureComputeDur,
		m.MLPredictDur,
		m.BrainAggregateDur,
		m.SignalGenerateDur,
		m.SignalsGeneratedTotal,
		m.SignalsNoTradeTotal,
		m.FanoutDropsTotal,
		m.ActiveSessions,
		m.SessionsStartedTotal,
		m.SessionsStoppedTotal,
		m.WinLossResolvedTotal,
		m.VolatilityWarningsTotal,
		m.FeedReconnectsTotal,
		m.FeedTerminalTotal,
		m.SnapshotSaveDur,
	)

	return m
}

// HealthStatus tracks the liveness of this process's dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	SnapshotDBOK   bool      `json:"snapshot_db_ok"`
	ActiveSessions int       `json:"active_sessions"`

	LastCheckAt time.Time `json:"last_check_at"`
	StartedAt   time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSnapshotDBOK(v bool) {
	h.mu.Lock()
	h.SnapshotDBOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetActiveSessions(n int) {
	h.mu.Lock()
	h.ActiveSessions = n
	h.mu.Unlock()
}

// Snapshot returns a read-only copy for HTTP handlers outside this
// package (internal/api's /api/bot/status).
func (h *HealthStatus) Snapshot() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HealthStatus{
		FeedConnected:  h.FeedConnected,
		LastTickTime:   h.LastTickTime,
		SnapshotDBOK:   h.SnapshotDBOK,
		ActiveSessions: h.ActiveSessions,
		LastCheckAt:    h.LastCheckAt,
		StartedAt:      h.StartedAt,
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected || !h.SnapshotDBOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string `json:"status"`
		Uptime         string `json:"uptime"`
		FeedConnected  bool   `json:"feed_connected"`
		LastTickTime   string `json:"last_tick_time"`
		TickAge        string `json:"tick_age"`
		SnapshotDBOK   bool   `json:"snapshot_db_ok"`
		ActiveSessions int    `json:"active_sessions"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:  h.FeedConnected,
		LastTickTime:   h.LastTickTime.Format(time.RFC3339),
		TickAge:        tickAge,
		SnapshotDBOK:   h.SnapshotDBOK,
		ActiveSessions: h.ActiveSessions,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
