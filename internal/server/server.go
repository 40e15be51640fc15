// Package server exposes a cache over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rshade/scoutcache/internal/cache"
	"github.com/rshade/scoutcache/internal/logging"
)

// Timeouts applied to the HTTP server.
const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// Header names.
const (
	HeaderCache   = "X-Cache"
	HeaderTraceID = "X-Trace-Id"
)

// Server serves lookups, stats and metrics for one cache.
type Server struct {
	cache    *cache.Cache
	logger   zerolog.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	handler  http.Handler
}

// New creates a server for c. Metrics are registered on a private registry
// so several servers can coexist in one process.
func New(c *cache.Cache, logger zerolog.Logger) (*Server, error) {
	if c == nil {
		return nil, cache.ErrNotInitialized
	}

	s := &Server{
		cache:    c,
		logger:   logging.ComponentLogger(logger, "server"),
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cache.DefaultMetricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cache.DefaultMetricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
	}

	for _, collector := range []prometheus.Collector{
		cache.NewCollector(c, cache.DefaultMetricsNamespace),
		s.requests,
		s.latency,
	} {
		if err := s.registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	mux := http.NewServeMux()
	s.route(mux, "GET /healthz", "healthz", s.handleHealth)
	s.route(mux, "GET /v1/lookup", "lookup", s.handleLookup)
	s.route(mux, "DELETE /v1/lookup", "invalidate", s.handleInvalidate)
	s.route(mux, "GET /v1/stats", "stats", s.handleStats)
	s.route(mux, "GET /metrics", "metrics",
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}).ServeHTTP)
	s.handler = mux

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.logger.WithContext(context.Background()) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", ln.Addr().String()).Msg("server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("server stopped")
	return nil
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.Handle(pattern, s.middleware(name, h))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.cache.Lookup(r.Context(), q)
	if err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).Str("key", res.Key).Msg("lookup failed")
		status := http.StatusBadGateway
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, err)
		return
	}

	if res.Hit {
		w.Header().Set(HeaderCache, "HIT")
	} else {
		w.Header().Set(HeaderCache, "MISS")
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Last-Modified", res.StoredAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Payload)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.cache.Invalidate(r.Context(), q); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statsResponse is the body of GET /v1/stats.
type statsResponse struct {
	cache.StatsSnapshot
	HitRate      float64 `json:"hit_rate"`
	Entries      int     `json:"entries"`
	DiskBytes    int64   `json:"disk_bytes"`
	MaxSizeBytes int64   `json:"max_size_bytes"`
	TTLSeconds   int     `json:"ttl_seconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.cache.Stats()
	resp := statsResponse{
		StatsSnapshot: snap,
		HitRate:       snap.HitRate(),
		MaxSizeBytes:  s.cache.Config().MaxSizeBytes,
		TTLSeconds:    s.cache.Config().TTLSeconds,
	}
	for info, err := range s.cache.Store().Entries() {
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Entries++
		resp.DiskBytes += info.Size
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseQuery reads q, scope and limit from the URL. Scope and limit fall
// back to the cache defaults.
func parseQuery(r *http.Request) (cache.Query, error) {
	params := r.URL.Query()
	q := cache.Query{
		Text:  params.Get("q"),
		Scope: params.Get("scope"),
		Limit: cache.DefaultLimit,
	}
	if q.Scope == "" {
		q.Scope = cache.DefaultScope
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return cache.Query{}, fmt.Errorf("limit must be a positive integer, got %q", raw)
		}
		q.Limit = limit
	}
	return q, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
