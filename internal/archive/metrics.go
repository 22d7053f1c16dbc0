package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storedash_archive_operations_total",
		Help: "Archive operations by type and outcome.",
	}, []string{"op", "result"})

	skippedEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storedash_archive_skipped_entries_total",
		Help: "Entries left out of archive listings by reason.",
	}, []string{"reason"})

	metadataCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storedash_archive_metadata_cache_lookups_total",
		Help: "Parsed metadata cache lookups by result.",
	}, []string{"result"})

	reconcileRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storedash_archive_reconcile_runs_total",
		Help: "Completed archive reconcile runs.",
	})

	reconcileIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storedash_archive_reconcile_issues_total",
		Help: "Orphaned entries found by reconcile, by type.",
	}, []string{"type"})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storedash_archive_reconcile_duration_seconds",
		Help:    "Duration of archive reconcile runs.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)
