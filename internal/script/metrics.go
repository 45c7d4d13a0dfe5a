package script

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "script_calls_total",
		Help: "Script backend calls by action and outcome",
	}, []string{"action", "outcome"})

	metricCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "script_call_latency_ms",
		Help:    "Script backend round-trip latency (ms)",
		Buckets: prometheus.ExponentialBuckets(20, 1.8, 10),
	}, []string{"action"})
)
