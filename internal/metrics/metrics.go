// Package metrics exposes the planner's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstore_operations_total",
			Help: "Task store operations by kind and outcome",
		},
		[]string{"op", "result"},
	)

	compensations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskstore_compensations_total",
			Help: "Compensating deletes issued after a failed sub-task insert",
		},
		[]string{"result"},
	)

	inFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskstore_inflight_mutations",
			Help: "Task mutations currently awaiting the record store",
		},
		[]string{"op"},
	)

	notices = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notices_total",
			Help: "Notices shown to users by kind",
		},
		[]string{"kind"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.3, 1, 3},
		},
		[]string{"method", "route"},
	)
)

// ObserveOperation counts a finished store operation.
func ObserveOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOperations.WithLabelValues(op, result).Inc()
}

// ObserveCompensation counts a compensating delete.
func ObserveCompensation(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	compensations.WithLabelValues(result).Inc()
}

// TrackInFlight raises the in-flight gauge for op and returns the func that
// lowers it.
func TrackInFlight(op string) func() {
	g := inFlight.WithLabelValues(op)
	g.Inc()
	return g.Dec
}

// ObserveNotice counts a shown notice.
func ObserveNotice(kind string) {
	notices.WithLabelValues(kind).Inc()
}

// ObserveRequest records one HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
