package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// DurationBuckets span 10ms to 10min, enough for a hash phase over a large tree
	DurationBuckets = []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 600}

	// SizeBuckets span 1KB to 4GB of file content
	SizeBuckets = prometheus.ExponentialBuckets(1024, 8, 8)
)

// NewCounter builds an unlabeled counter
func NewCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

// NewCounterVec builds a counter partitioned by labels
func NewCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

// NewGauge builds an unlabeled gauge
func NewGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

// NewHistogramVec builds a labeled histogram over the given buckets
func NewHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}, labels)
}

// NewHistogram builds an unlabeled histogram over the given buckets
func NewHistogram(name, help string, buckets []float64) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	})
}
