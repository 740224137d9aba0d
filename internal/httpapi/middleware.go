package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"task-planner/internal/metrics"
)

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

// RequestID returns the id chi's RequestID middleware assigned, or "".
func RequestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// echoRequestID returns the request id to the caller. It runs after
// middleware.RequestID.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := RequestID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// observe logs every request and records its metrics under the matched
// route pattern so ids don't explode label cardinality.
func observe(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			elapsed := time.Since(start)
			route := routeLabel(r)
			metrics.ObserveRequest(r.Method, route, wrapped.status, elapsed)
			log.WithFields(logrus.Fields{
				"request_id":  RequestID(r.Context()),
				"method":      r.Method,
				"route":       route,
				"status":      wrapped.status,
				"duration_ms": elapsed.Milliseconds(),
				"remote_ip":   r.RemoteAddr,
			}).Info("request completed")
		})
	}
}

// routeLabel is the matched route pattern. Raw paths never become labels.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
