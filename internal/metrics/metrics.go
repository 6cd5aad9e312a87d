// Package metrics provides Prometheus instrumentation for the position ledger.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts ledger operations by op and result
	// ("ok", "invalid_amount", "custody_failure", "unauthorized", ...).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synth_ledger_operations_total",
		Help: "Total number of ledger operations",
	}, []string{"op", "result"})

	// OperationLatency tracks ledger operation latency including custody calls.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synth_ledger_operation_latency_seconds",
		Help:    "Ledger operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// CustodyVolume tracks collateral moved through the custodian.
	CustodyVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synth_ledger_custody_volume_total",
		Help: "Cumulative collateral moved by the custodian",
	}, []string{"direction"}) // "in" or "out"

	// RetainedCollateral tracks collateral left in custody by withdrawals
	// that paid out less than the locked amount.
	RetainedCollateral = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synth_ledger_retained_collateral_total",
		Help: "Collateral retained by custody on withdraw",
	})

	// OpenPositions tracks the number of positions with positive size.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synth_ledger_open_positions",
		Help: "Number of currently open positions",
	})

	// SyntheticAssetPrice exposes the current reference price.
	SyntheticAssetPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synth_ledger_synthetic_asset_price",
		Help: "Current synthetic asset reference price",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synth_ledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synth_ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synth_ledger_http_request_duration_seconds",
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

		// Owners appear in the URL; label by route pattern to bound cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
