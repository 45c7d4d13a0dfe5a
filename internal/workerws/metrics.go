package workerws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_commands_total",
		Help: "Commands sent to the speech worker",
	}, []string{"type", "outcome"}) // ok, failed, timeout, no_worker, gone

	metricMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worker_messages_total",
		Help: "Messages received from the speech worker",
	}, []string{"type"})

	gaugeConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worker_connected",
		Help: "1 while a speech worker is attached",
	})
)
