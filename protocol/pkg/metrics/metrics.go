package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billions_bounty_build_info",
			Help: "Build information of the bounty protocol daemon",
		},
		[]string{"version", "commit", "date"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billions_bounty_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billions_bounty_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "billions_bounty_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Protocol metrics
	EntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billions_bounty_entries_total",
			Help: "Total number of processed entries",
		},
		[]string{"bounty_id"},
	)

	EntryVolumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billions_bounty_entry_volume_total",
			Help: "Total value of processed entries in base units",
		},
		[]string{"bounty_id"},
	)

	PoolGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billions_bounty_pool_balance",
			Help: "Current pool balance per bounty in base units",
		},
		[]string{"bounty_id"},
	)

	EscapesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billions_bounty_escapes_total",
			Help: "Total number of executed escape fallbacks",
		},
		[]string{"bounty_id"},
	)

	WinnerPayoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billions_bounty_winner_payouts_total",
			Help: "Total number of signature-authorized winner payouts",
		},
		[]string{"bounty_id"},
	)

	DecisionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billions_bounty_decision_rejections_total",
			Help: "Total number of rejected decision submissions",
		},
		[]string{"reason"}, // "invalid_signature", "nonce_replayed", "invalid_input"
	)

	// Buyback metrics
	BuybackAllocatedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "billions_bounty_buyback_allocated",
			Help: "Cumulative buyback allocation in base units",
		},
	)

	BuybackExecutedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "billions_bounty_buyback_executed",
			Help: "Cumulative executed buyback in base units",
		},
	)

	BuybackRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billions_bounty_buyback_runs_total",
			Help: "Total number of buyback executor runs",
		},
		[]string{"status"},
	)

	BuybackRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "billions_bounty_buyback_run_duration_seconds",
			Help:    "Duration of buyback executor runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
		},
	)
)

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Use the route pattern if available, otherwise use the path
		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		status := strconv.Itoa(ww.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// RecordEntry records a processed entry and the resulting pool level.
func RecordEntry(bountyID uint64, amount, currentPool uint64) {
	id := strconv.FormatUint(bountyID, 10)
	EntriesTotal.WithLabelValues(id).Inc()
	EntryVolumeTotal.WithLabelValues(id).Add(float64(amount))
	PoolGauge.WithLabelValues(id).Set(float64(currentPool))
}

// RecordEscape records an executed escape fallback.
func RecordEscape(bountyID uint64, resetPool uint64) {
	id := strconv.FormatUint(bountyID, 10)
	EscapesTotal.WithLabelValues(id).Inc()
	PoolGauge.WithLabelValues(id).Set(float64(resetPool))
}

// RecordWinnerPayout records a signature-authorized payout.
func RecordWinnerPayout(bountyID uint64, resetPool uint64) {
	id := strconv.FormatUint(bountyID, 10)
	WinnerPayoutsTotal.WithLabelValues(id).Inc()
	PoolGauge.WithLabelValues(id).Set(float64(resetPool))
}

// RecordDecisionRejection records a rejected decision submission.
func RecordDecisionRejection(reason string) {
	DecisionRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordBuybackState updates the buyback accounting gauges.
func RecordBuybackState(allocated, executed uint64) {
	BuybackAllocatedGauge.Set(float64(allocated))
	BuybackExecutedGauge.Set(float64(executed))
}

// RecordBuybackRun records one executor run.
func RecordBuybackRun(duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	BuybackRunsTotal.WithLabelValues(status).Inc()
	BuybackRunDuration.Observe(duration.Seconds())
}
