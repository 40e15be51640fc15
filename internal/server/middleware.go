package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rshade/scoutcache/internal/logging"
)

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// middleware attaches a trace ID and a request-scoped logger to the
// context, then records the request in the logs and metrics.
func (s *Server) middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx := r.Context()
		if incoming := r.Header.Get(HeaderTraceID); incoming != "" {
			ctx = logging.ContextWithTraceID(ctx, incoming)
		}
		traceID := logging.GetOrGenerateTraceID(ctx)
		ctx = logging.ContextWithTraceID(ctx, traceID)

		logger := s.logger.With().Str(logging.TraceIDField, traceID).Str("route", route).Logger()
		ctx = logger.WithContext(ctx)

		w.Header().Set(HeaderTraceID, traceID)
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		elapsed := time.Since(start)
		s.requests.WithLabelValues(route, strconv.Itoa(recorder.statusCode)).Inc()
		s.latency.WithLabelValues(route).Observe(elapsed.Seconds())

		event := logger.Debug()
		if recorder.statusCode >= http.StatusInternalServerError {
			event = logger.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.statusCode).
			Int("bytes", recorder.bytes).
			Dur("elapsed", elapsed).
			Msg("request handled")
	})
}
