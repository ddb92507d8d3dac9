// Package metrics provides Prometheus instrumentation for the energy
// trading engine.
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
	// OffersCreated counts offers listed, partitioned by energy type.
	OffersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_offers_created_total",
		Help: "Total number of energy offers created",
	}, []string{"energy_type"})

	// OffersCancelled counts seller-initiated cancellations.
	OffersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "energy_offers_cancelled_total",
		Help: "Total number of offers cancelled by their sellers",
	})

	// TradesTotal counts trades executed, partitioned by energy type.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_trades_total",
		Help: "Total number of trades executed",
	}, []string{"energy_type"})

	// EnergyTraded accumulates traded volume in kWh.
	EnergyTraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_traded_kwh_total",
		Help: "Cumulative energy traded in kWh",
	}, []string{"energy_type"})

	// ActiveOffers tracks the number of currently active offers.
	ActiveOffers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "energy_active_offers",
		Help: "Number of currently active energy offers",
	})

	// RejectedOperations counts ledger transitions that aborted, by reason.
	RejectedOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_rejected_operations_total",
		Help: "Ledger operations rejected before commit",
	}, []string{"reason"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "energy_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "energy_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "energy_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
