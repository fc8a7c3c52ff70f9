package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"authority/internal/observability/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Instrument records request counts and latency per route pattern and logs
// one line per finished request.
func Instrument(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					path = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(r.Method, path).Observe(elapsed.Seconds())

			logger.Info("finished request",
				"request_id", RequestIDFromContext(r.Context()),
				"trace_id", TraceIDFromContext(r.Context()),
				"method", r.Method,
				"path", path,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}
