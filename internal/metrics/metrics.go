package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	SamplesTotal   prometheus.Counter
	InvalidSamples prometheus.Counter
	WindowEvicted  prometheus.Counter

	// Signal stream
	SignalsAccepted   *prometheus.CounterVec // labels: type, strategy
	SignalsDuplicate  prometheus.Counter
	SignalChanDropped prometheus.Counter

	// Evaluation
	EvalDur   prometheus.Histogram
	LastPrice prometheus.Gauge
	RSI       prometheus.Gauge
	EMA       prometheus.Gauge

	// Collaborators
	FeedErrors       prometheus.Counter
	SinkErrors       *prometheus.CounterVec // labels: sink
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber
	FanoutQueueDepth *prometheus.GaugeVec   // labels: subscriber

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Gateway
	WSClients prometheus.Gauge
}

// NewMetrics registers all metrics on the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_samples_total",
			Help: "Total price samples accepted into the window",
		}),
		InvalidSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_invalid_samples_total",
			Help: "Price samples rejected as invalid input",
		}),
		WindowEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_window_evicted_total",
			Help: "Samples evicted from the price window on overflow",
		}),

		SignalsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_signals_accepted_total",
			Help: "Signals accepted into the stream",
		}, []string{"type", "strategy"}),
		SignalsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_signals_duplicate_total",
			Help: "Candidate signals dropped as same-timestamp duplicates",
		}),
		SignalChanDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_signal_chan_dropped_total",
			Help: "Accepted signals not delivered to the event channel because it was full",
		}),

		EvalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_eval_duration_seconds",
			Help:    "Per-sample indicator + policy evaluation latency",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_last_price",
			Help: "Most recent accepted price sample",
		}),
		RSI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_rsi",
			Help: "Current RSI(14)",
		}),
		EMA: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_ema",
			Help: "Current EMA(20)",
		}),

		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_feed_errors_total",
			Help: "Price feed fetch/parse failures",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_sink_errors_total",
			Help: "Failures delivering accepted signals to a sink",
		}, []string{"sink"}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_fanout_drops_total",
			Help: "Signals dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		FanoutQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalengine_fanout_queue_depth",
			Help: "Signals queued per fan-out subscriber",
		}, []string{"subscriber"}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_ws_clients",
			Help: "Connected websocket clients",
		}),
	}

	reg.MustRegister(
		m.SamplesTotal,
		m.InvalidSamples,
		m.WindowEvicted,
		m.SignalsAccepted,
		m.SignalsDuplicate,
		m.SignalChanDropped,
		m.EvalDur,
		m.LastPrice,
		m.RSI,
		m.EMA,
		m.FeedErrors,
		m.SinkErrors,
		m.FanoutDropsTotal,
		m.FanoutQueueDepth,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.WSClients,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	Instrument     string    `json:"instrument"`
	FeedMode       string    `json:"feed_mode"`
	LastSampleTime time.Time `json:"last_sample_time"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteEnabled  bool      `json:"sqlite_enabled"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(instrument, feedMode string) *HealthStatus {
	return &HealthStatus{
		Instrument: instrument,
		FeedMode:   feedMode,
		StartedAt:  time.Now(),
	}
}

func (h *HealthStatus) SetLastSampleTime(t time.Time) {
	h.mu.Lock()
	h.LastSampleTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the journal database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either dependency
// may be nil when disabled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(checkCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(checkCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	sampleAge := ""
	if !h.LastSampleTime.IsZero() {
		sampleAge = time.Since(h.LastSampleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Instrument      string  `json:"instrument"`
		FeedMode        string  `json:"feed_mode"`
		LastSampleTime  string  `json:"last_sample_time"`
		SampleAge       string  `json:"sample_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Instrument:      h.Instrument,
		FeedMode:        h.FeedMode,
		LastSampleTime:  h.LastSampleTime.Format(time.RFC3339),
		SampleAge:       sampleAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
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
