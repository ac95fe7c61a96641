package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// GatewayRequestsTotal counts outbound gateway calls by operation and HTTP status
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Outbound payment gateway calls by provider, operation and status",
		},
		[]string{"provider", "operation", "status"},
	)

	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paygate",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Latency of outbound payment gateway calls",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	TokenRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Subsystem: "oauth",
			Name:      "token_requests_total",
			Help:      "Token lookups by source (cache, fresh, error)",
		},
		[]string{"provider", "source"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Retries triggered by the gateway's invalid transaction id answer",
		},
		[]string{"provider"},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Subsystem: "gateway",
			Name:      "fallbacks_total",
			Help:      "Legacy fallback calls by whether they produced a payment URL",
		},
		[]string{"provider", "recovered"},
	)

	ReconciledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Subsystem: "orders",
			Name:      "reconciled_total",
			Help:      "Order reconciliations by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// HTTPRequestsTotal counts inbound API requests by route pattern and outcome
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "paygate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Inbound API requests by route, method and outcome",
		},
		[]string{"route", "method", "outcome"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "paygate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of inbound API requests",
			Buckets:   []float64{0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		GatewayRequestsTotal,
		GatewayRequestDuration,
		TokenRequestsTotal,
		RetriesTotal,
		FallbacksTotal,
		ReconciledTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ObserveGatewayCall records one outbound call. statusCode 0 means the call failed in transport.
func ObserveGatewayCall(provider, operation string, statusCode int, seconds float64) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	GatewayRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	GatewayRequestDuration.WithLabelValues(provider, operation).Observe(seconds)
}

func IncToken(provider, source string) {
	TokenRequestsTotal.WithLabelValues(provider, source).Inc()
}

func IncRetry(provider string) {
	RetriesTotal.WithLabelValues(provider).Inc()
}

func IncFallback(provider string, recovered bool) {
	FallbacksTotal.WithLabelValues(provider, strconv.FormatBool(recovered)).Inc()
}

func IncReconciled(provider, outcome string) {
	ReconciledTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveHTTPRequest records one inbound request. 2xx and 3xx count as success.
func ObserveHTTPRequest(route, method string, statusCode int, seconds float64) {
	outcome := "failed"
	if statusCode >= 200 && statusCode < 400 {
		outcome = "success"
	}
	HTTPRequestsTotal.WithLabelValues(route, method, outcome).Inc()
	HTTPRequestDuration.WithLabelValues(route, outcome).Observe(seconds)
}
