package dialogue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialogue_state_transitions_total",
		Help: "Dialogue controller state transitions",
	}, []string{"from", "to"})

	metricHearingCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialogue_hearing_cycles_total",
		Help: "Hearing cycles started",
	})

	metricTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialogue_timeouts_total",
		Help: "Listening deadlines that expired",
	}, []string{"kind"}) // no_input, no_match, max_hearing

	metricCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dialogue_commits_total",
		Help: "Heard commits by how the reply was obtained",
	}, []string{"via"}) // speculative, fresh

	metricTurnFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dialogue_turn_failures_total",
		Help: "Turns that ended with a collaborator error",
	})

	gaugeHalted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dialogue_halted",
		Help: "1 while the script has ended the dialogue",
	})
)
