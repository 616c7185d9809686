package detect

import "github.com/prometheus/client_golang/prometheus"

// Prometheus detection engine metrics.
var (
	detectionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detect_runs_total",
			Help: "Total number of detection runs executed.",
		},
		[]string{"trigger"},
	)
	detectionRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detect_run_duration_seconds",
			Help:    "Detection run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	detectionPairsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detect_pairs_scanned_total",
			Help: "Total number of asset/metric pairs scanned.",
		},
	)
	detectionPairFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detect_pair_failures_total",
			Help: "Total number of pair scans that failed.",
		},
	)
	anomalyRecordsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detect_anomaly_records_created_total",
			Help: "Total number of anomaly records persisted.",
		},
	)
	duplicateRecordsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detect_duplicate_records_rejected_total",
			Help: "Total number of anomaly records rejected as duplicates.",
		},
	)
)

func init() {
	prometheus.MustRegister(detectionRunsTotal)
	prometheus.MustRegister(detectionRunDuration)
	prometheus.MustRegister(detectionPairsScanned)
	prometheus.MustRegister(detectionPairFailures)
	prometheus.MustRegister(anomalyRecordsCreated)
	prometheus.MustRegister(duplicateRecordsRejected)
}
