package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics tracks the JSON-RPC surface of the market node.
type RPCMetrics struct {
	Requests *prometheus.CounterVec
	Errors   *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

var (
	rpcOnce    sync.Once
	rpcMetrics *RPCMetrics
)

// RPC lazily registers and returns the shared RPC metric set.
func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcMetrics = &RPCMetrics{
			Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketvault",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Number of JSON-RPC requests received, labelled by method.",
			}, []string{"method"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketvault",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Number of JSON-RPC requests that returned an error, labelled by method and error code.",
			}, []string{"method", "code"}),
			Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "marketvault",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC request latency in seconds, labelled by method.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcMetrics.Requests, rpcMetrics.Errors, rpcMetrics.Latency)
	})
	return rpcMetrics
}

// ObserveRequest records one completed request.
func (m *RPCMetrics) ObserveRequest(method string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method).Inc()
	m.Latency.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserveError records one failed request with its JSON-RPC error code.
func (m *RPCMetrics) ObserveError(method, code string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(method, code).Inc()
}
