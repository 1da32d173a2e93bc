package service

import "github.com/prometheus/client_golang/prometheus"

// metrics holds every Prometheus collector the service exposes at /metrics.
// Names are grounded on original_source/layer0/api.py's metric names.
type metrics struct {
	requestsTotal            *prometheus.CounterVec
	scanDurationMs           prometheus.Histogram
	rulesMatchedTotal        prometheus.Counter
	datasetReloadFailures    prometheus.Counter
	circuitBreakerTripsTotal prometheus.Counter
	activeRequests           prometheus.Gauge
	authFailuresTotal        prometheus.Counter
}

// timeoutCounter is the subset of *regexeval.Evaluator the metrics layer
// needs: its TimeoutCount is already a running cumulative total, so it is
// exposed directly via a GaugeFunc rather than re-added on every scan.
type timeoutCounter interface {
	TimeoutCount() int64
}

func newMetrics(reg *prometheus.Registry, timeouts timeoutCounter) *metrics {
	m := &metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "layer0_requests_total",
			Help: "Total HTTP requests handled, by route and status.",
		}, []string{"route", "status"}),
		scanDurationMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "layer0_scan_duration_ms",
			Help:    "Scan processing time in milliseconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		rulesMatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "layer0_rules_matched_total",
			Help: "Total rule matches across all scans.",
		}),
		datasetReloadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "layer0_dataset_reload_failures_total",
			Help: "Total failed dataset reload attempts.",
		}),
		circuitBreakerTripsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "layer0_circuit_breaker_trips_total",
			Help: "Total times the scan circuit breaker has tripped open.",
		}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "layer0_active_requests",
			Help: "In-flight HTTP requests.",
		}),
		authFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "layer0_auth_failures_total",
			Help: "Total requests rejected for a missing or invalid API key.",
		}),
	}
	regexTimeoutsTotal := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "layer0_regex_timeouts_total",
		Help: "Total regex evaluations that hit the wall-clock timeout.",
	}, func() float64 { return float64(timeouts.TimeoutCount()) })

	reg.MustRegister(
		m.requestsTotal, m.scanDurationMs, m.rulesMatchedTotal, regexTimeoutsTotal,
		m.datasetReloadFailures, m.circuitBreakerTripsTotal, m.activeRequests, m.authFailuresTotal,
	)
	return m
}
