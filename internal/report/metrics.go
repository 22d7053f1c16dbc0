package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storedash_report_cache_lookups_total",
			Help: "Report cache lookups by result.",
		},
		[]string{"result"},
	)

	aggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storedash_report_aggregation_duration_seconds",
			Help:    "Time spent running the popular products aggregation.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
