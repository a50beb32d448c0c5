package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// History API metrics
var (
	// HTTPRequestsTotal counts history API requests by route, method and status
	HTTPRequestsTotal = NewCounterVec(
		"dupsweep_http_requests_total",
		"Total number of history API requests.",
		[]string{"handler", "method", "status"},
	)

	// HTTPRequestDuration tracks history API latency by route, method and status
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dupsweep_http_request_duration_seconds",
		Help:    "History API request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler", "method", "status"})
)

func httpCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestsTotal,
		HTTPRequestDuration,
	}
}

// ObserveHTTPRequest records one served request
func ObserveHTTPRequest(handler, method, status string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(handler, method, status).Inc()
	HTTPRequestDuration.WithLabelValues(handler, method, status).Observe(seconds)
}
