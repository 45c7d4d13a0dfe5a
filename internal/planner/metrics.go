package planner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planner_speculative_fetches_total",
		Help: "Speculative reply fetches issued",
	})

	metricHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planner_speculative_hits_total",
		Help: "Speculative replies consumed at commit",
	})

	metricDiscards = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planner_speculative_discards_total",
		Help: "Speculative replies dropped without use",
	}, []string{"reason"})
)
