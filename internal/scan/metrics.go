package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostwarden",
		Subsystem: "scan",
		Name:      "total",
		Help:      "Completed scans by category and outcome.",
	}, []string{"category", "outcome"})

	metricScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hostwarden",
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of successful scans.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"category"})
)
