package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostwarden",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, path, and status.",
	}, []string{"method", "path", "status"})

	metricRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hostwarden",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Wall-clock time spent handling a request.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	metricRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hostwarden",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-client-IP limiter.",
	}, []string{"path"})
)
