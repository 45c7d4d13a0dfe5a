package turn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSegments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turn_segments_total",
		Help: "Turn segments played by kind",
	}, []string{"kind"})

	metricTurnErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "turn_errors_total",
		Help: "Turns aborted by a collaborator failure",
	})
)
