// Package service exposes the Layer-0 scanner over HTTP: a chi router with
// rate limiting, a circuit breaker around the scan path, API-key auth,
// Prometheus metrics, and Kubernetes-style health probes.
// Grounded on retr0ever-Veil's go-backend/cmd/server/main.go for the
// chi router/middleware/graceful-shutdown shape, and on
// original_source/layer0/api.py for routes, rate limits, and metric
// semantics (100/minute on /scan, 10/hour on /datasets/reload, a circuit
// breaker with a 10-failure threshold and 60s recovery).
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/l0scanner/l0scanner/pkg/auditlog"
	"github.com/l0scanner/l0scanner/pkg/dataset"
	"github.com/l0scanner/l0scanner/pkg/errs"
	"github.com/l0scanner/l0scanner/pkg/registry"
	"github.com/l0scanner/l0scanner/pkg/regexeval"
	"github.com/l0scanner/l0scanner/pkg/scanner"
	"github.com/l0scanner/l0scanner/pkg/types"
)

// Deps bundles everything the service needs to construct its router.
type Deps struct {
	Scanner    *scanner.Scanner
	Registry   *registry.Registry
	Loader     *dataset.Loader
	DatasetDir string
	AuditLog   *auditlog.Store
	Evaluator  *regexeval.Evaluator

	APIKey         string
	MetricsEnabled bool
	Logger         *slog.Logger
}

// Service wires Deps into an http.Handler plus background state: the
// per-client rate limiters and the scan circuit breaker.
type Service struct {
	deps    Deps
	metrics *metrics
	promReg *prometheus.Registry
	logger  *slog.Logger

	breaker *gobreaker.CircuitBreaker

	limMu      sync.Mutex
	scanLims   map[string]*rate.Limiter
	reloadLims map[string]*rate.Limiter
}

// New builds a Service and its router.
func New(deps Deps) (*Service, http.Handler) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	promReg := prometheus.NewRegistry()
	m := newMetrics(promReg, deps.Evaluator)

	s := &Service{
		deps:       deps,
		metrics:    m,
		promReg:    promReg,
		logger:     logger,
		scanLims:   make(map[string]*rate.Limiter),
		reloadLims: make(map[string]*rate.Limiter),
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "scan",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				m.circuitBreakerTripsTotal.Inc()
			}
			logger.Info("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return s, s.routes()
}

func (s *Service) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(api chi.Router) {
		api.Use(s.requireAPIKey)
		api.Post("/scan", s.rateLimited(s.scanLimiter, s.handleScan))
		api.Post("/datasets/reload", s.rateLimited(s.reloadLimiter, s.handleReload))
		api.Get("/stats", s.handleStats)
	})

	return r
}

func (s *Service) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Layer-0 Security Filter System",
		"version": "1.0.0",
		"status":  "operational",
		"endpoints": map[string]string{
			"scan":      "POST /scan",
			"health":    "GET /health",
			"liveness":  "GET /health/live",
			"readiness": "GET /health/ready",
			"metrics":   "GET /metrics",
			"reload":    "POST /datasets/reload",
			"stats":     "GET /stats",
		},
	})
}

func (s *Service) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) handleReadiness(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Registry.Current()
	if snap.RuleCount == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"detail": "no rules loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"rule_count":    snap.RuleCount,
		"dataset_count": len(snap.Datasets),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.Registry.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"rule_set_version": snap.Version,
		"total_rules":      snap.RuleCount,
		"total_datasets":   len(snap.Datasets),
	})
}

func (s *Service) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !s.deps.MetricsEnabled {
		http.Error(w, "metrics not enabled", http.StatusNotFound)
		return
	}
	promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Registry.Stats())
}

func (s *Service) handleScan(w http.ResponseWriter, r *http.Request) {
	s.metrics.activeRequests.Inc()
	defer s.metrics.activeRequests.Dec()

	var in types.PreparedInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.metrics.requestsTotal.WithLabelValues("scan", "validation_error").Inc()
		http.Error(w, "invalid request body: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	// Validate before the breaker sees this request at all: a malformed
	// request is a client error, not a scanner failure, and must not count
	// toward gobreaker.Settings.ReadyToTrip or take a breaker slot away
	// from legitimate traffic.
	if err := s.deps.Scanner.ValidateInput(&in); err != nil {
		s.metrics.requestsTotal.WithLabelValues("scan", "validation_error").Inc()
		http.Error(w, err.Error(), errs.HTTPStatus(err))
		return
	}

	start := time.Now()
	out, err := s.breaker.Execute(func() (any, error) {
		return s.deps.Scanner.Scan(r.Context(), in)
	})
	elapsed := time.Since(start)

	result, _ := out.(*types.ScanResult)
	if err != nil {
		if result == nil {
			s.metrics.requestsTotal.WithLabelValues("scan", "error").Inc()
			http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		// Scan ran to completion (e.g. hit its chunk_processing_timeout_ms
		// deadline) and still produced a usable, degraded result; surface
		// it with the status its error kind maps to instead of a blanket 503.
		s.metrics.requestsTotal.WithLabelValues("scan", string(result.Status)).Inc()
		s.metrics.scanDurationMs.Observe(float64(elapsed.Microseconds()) / 1000.0)
		writeJSON(w, errs.HTTPStatus(err), result)
		return
	}

	s.metrics.requestsTotal.WithLabelValues("scan", string(result.Status)).Inc()
	s.metrics.scanDurationMs.Observe(float64(elapsed.Microseconds()) / 1000.0)
	s.metrics.rulesMatchedTotal.Add(float64(len(result.Matches)))

	if s.deps.AuditLog != nil {
		if err := s.deps.AuditLog.Record(r.Context(), result, in.SessionID, in.RequestID); err != nil {
			s.logger.Warn("failed to persist audit log entry", "err", err)
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.deps.Loader.LoadDir(s.deps.DatasetDir)
	if err != nil {
		s.metrics.datasetReloadFailures.Inc()
		http.Error(w, "reload failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	start := time.Now()
	snap := s.deps.Registry.Load(datasets)
	s.deps.Evaluator.Reset()
	s.deps.Scanner.SyncRules()
	elapsed := time.Since(start)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "success",
		"rule_set_version": snap.Version,
		"total_rules":      snap.RuleCount,
		"reload_time_ms":   float64(elapsed.Microseconds()) / 1000.0,
	})
}

func (s *Service) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" || key != s.deps.APIKey {
			s.metrics.authFailuresTotal.Inc()
			http.Error(w, "invalid or missing API key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimited wraps next with a per-client-IP token bucket built by limiterFor.
func (s *Service) rateLimited(limiterFor func(clientIP string) *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lim := limiterFor(clientIP(r))
		if !lim.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// scanLimiter grants 100 requests/minute per client IP, matching the
// Python original's @limiter.limit("100/minute") on /scan.
func (s *Service) scanLimiter(clientIP string) *rate.Limiter {
	return s.limiterFor(s.scanLims, clientIP, rate.Every(time.Minute/100), 10)
}

// reloadLimiter grants 10 requests/hour per client IP, matching
// @limiter.limit("10/hour") on /datasets/reload.
func (s *Service) reloadLimiter(clientIP string) *rate.Limiter {
	return s.limiterFor(s.reloadLims, clientIP, rate.Every(time.Hour/10), 2)
}

func (s *Service) limiterFor(store map[string]*rate.Limiter, clientIP string, r rate.Limit, burst int) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	lim, ok := store[clientIP]
	if !ok {
		lim = rate.NewLimiter(r, burst)
		store[clientIP] = lim
	}
	return lim
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Serve starts an HTTP server on addr and blocks until ctx is canceled,
// then gracefully shuts down within 10 seconds.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("service starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("service shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
