package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Scan subsystem metrics
var (
	// FilesScannedTotal counts regular files recorded by the size grouper
	FilesScannedTotal = NewCounter(
		"dupsweep_files_scanned_total",
		"Total number of regular files discovered while walking scan roots.",
	)

	// BytesScannedTotal sums the sizes of all discovered files
	BytesScannedTotal = NewCounter(
		"dupsweep_bytes_scanned_total",
		"Total bytes of regular files discovered while walking scan roots.",
	)

	// EntriesSkippedTotal counts walk entries skipped, by reason
	EntriesSkippedTotal = NewCounterVec(
		"dupsweep_entries_skipped_total",
		"Directory entries skipped during the walk.",
		[]string{"reason"},
	)

	// FilesHashedTotal counts digest computations; files with a unique size never reach it
	FilesHashedTotal = NewCounter(
		"dupsweep_files_hashed_total",
		"Total number of files whose content digest was computed.",
	)

	// HashErrorsTotal counts digests that failed to read the file
	HashErrorsTotal = NewCounter(
		"dupsweep_hash_errors_total",
		"Total number of files that could not be digested.",
	)

	// DuplicateGroups is the number of duplicate groups found by the last scan
	DuplicateGroups = NewGauge(
		"dupsweep_duplicate_groups",
		"Number of duplicate groups found by the last scan.",
	)

	// DuplicateFiles is the number of files in duplicate groups found by the last scan
	DuplicateFiles = NewGauge(
		"dupsweep_duplicate_files",
		"Number of files participating in duplicate groups in the last scan.",
	)

	// HashedFileBytes is the size distribution of files that needed a digest
	HashedFileBytes = NewHistogram(
		"dupsweep_hashed_file_bytes",
		"Size of files whose content digest was computed.",
		SizeBuckets,
	)

	// PhaseDuration tracks how long each pipeline phase takes
	PhaseDuration = NewHistogramVec(
		"dupsweep_phase_duration_seconds",
		"Duration of pipeline phases in seconds.",
		DurationBuckets,
		[]string{"phase"},
	)
)

func scanCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		FilesScannedTotal,
		BytesScannedTotal,
		EntriesSkippedTotal,
		FilesHashedTotal,
		HashErrorsTotal,
		HashedFileBytes,
		DuplicateGroups,
		DuplicateFiles,
		PhaseDuration,
	}
}

// RecordSkippedEntry counts a walk entry skipped for reason
func RecordSkippedEntry(reason string) {
	EntriesSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordDuplicates publishes the size of the duplicate set
func RecordDuplicates(groups, files int) {
	DuplicateGroups.Set(float64(groups))
	DuplicateFiles.Set(float64(files))
}

// ObserveHashed counts one digest computation over size bytes
func ObserveHashed(size int64) {
	FilesHashedTotal.Inc()
	HashedFileBytes.Observe(float64(size))
}

// ObservePhase records the duration of a pipeline phase
func ObservePhase(phase string, seconds float64) {
	PhaseDuration.WithLabelValues(phase).Observe(seconds)
}
