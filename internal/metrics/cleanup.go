package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Action subsystem metrics
var (
	// FilesDeletedTotal tracks total files deleted
	FilesDeletedTotal = NewCounter(
		"dupsweep_files_deleted_total",
		"Total number of duplicate files deleted.",
	)

	// FilesMovedTotal tracks total files moved (bulk move and triage move)
	FilesMovedTotal = NewCounter(
		"dupsweep_files_moved_total",
		"Total number of duplicate files moved.",
	)

	// FilesRenamedTotal tracks total files renamed during triage
	FilesRenamedTotal = NewCounter(
		"dupsweep_files_renamed_total",
		"Total number of duplicate files renamed.",
	)

	// BytesReclaimedTotal tracks bytes removed from the scanned roots
	BytesReclaimedTotal = NewCounter(
		"dupsweep_bytes_reclaimed_total",
		"Total bytes deleted or moved out of the scanned roots.",
	)

	// ActionErrorsTotal tracks failed or refused per-file actions
	ActionErrorsTotal = NewCounterVec(
		"dupsweep_action_errors_total",
		"Total number of per-file actions that failed or were refused.",
		[]string{"action"},
	)

	// LastRunTimestamp records Unix timestamp of the last run
	LastRunTimestamp = NewGauge(
		"dupsweep_last_run_timestamp",
		"Timestamp of the last run (Unix epoch seconds).",
	)
)

func cleanupCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		FilesDeletedTotal,
		FilesMovedTotal,
		FilesRenamedTotal,
		BytesReclaimedTotal,
		ActionErrorsTotal,
		LastRunTimestamp,
	}
}

// RecordActionError counts a failed or refused action
func RecordActionError(action string) {
	ActionErrorsTotal.WithLabelValues(action).Inc()
}
