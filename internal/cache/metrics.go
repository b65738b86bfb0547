package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostwarden",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Cache lookups served from a live entry.",
	}, []string{"category"})

	metricMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostwarden",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Cache lookups that found no live entry.",
	}, []string{"category"})

	metricEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostwarden",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Entries evicted to make room at capacity.",
	}, []string{"category"})

	metricExpirations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostwarden",
		Subsystem: "cache",
		Name:      "expirations_total",
		Help:      "Entries removed because their TTL elapsed.",
	}, []string{"category"})
)
