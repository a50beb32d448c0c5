package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var initOnce sync.Once

// Init registers all metrics with the default Prometheus registry.
// This function is safe to call multiple times (uses sync.Once).
// Metrics are usable before Init; they are just not exported.
func Init() {
	initOnce.Do(func() {
		for _, c := range scanCollectors() {
			prometheus.MustRegister(c)
		}
		for _, c := range cleanupCollectors() {
			prometheus.MustRegister(c)
		}
		for _, c := range httpCollectors() {
			prometheus.MustRegister(c)
		}
	})
}

// RecordRun updates the last run timestamp to current time
func RecordRun() {
	LastRunTimestamp.Set(float64(time.Now().Unix()))
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	Init()
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
