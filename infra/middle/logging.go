package middle

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/infra/metrics"
)

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.written {
		rw.statusCode = statusCode
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.written = true
	return rw.ResponseWriter.Write(b)
}

// RequestIDMiddleware keeps an inbound X-Request-ID or assigns a uuid, and
// exposes it through chi's request id context key
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLoggingMiddleware logs one line per request and records HTTP metrics.
// The /metrics and /health endpoints are not logged.
func RequestLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)
			elapsed := time.Since(start)

			route := routePattern(r)
			metrics.ObserveHTTPRequest(route, r.Method, rw.statusCode, elapsed.Seconds())

			lctx := logger.LogContext{
				RequestID: requestID(r),
				Fields: map[string]any{
					"method":      r.Method,
					"path":        r.URL.Path,
					"route":       route,
					"status":      rw.statusCode,
					"duration_ms": elapsed.Milliseconds(),
					"client_ip":   GetClientIP(r),
				},
			}
			if provider := chi.URLParamFromCtx(r.Context(), "provider"); provider != "" {
				lctx.Provider = provider
			}

			log := logger.WithContext(lctx)
			switch {
			case rw.statusCode >= 500:
				log.Error("Request failed", nil)
			case rw.statusCode >= 400:
				log.Warn("Request rejected")
			default:
				log.Info("Request handled")
			}
		})
	}
}

// routePattern returns chi's matched route so metrics are not labelled by order id
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
