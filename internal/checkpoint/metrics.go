package checkpoint

import "github.com/prometheus/client_golang/prometheus"

var CreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riskengine",
	Subsystem: "checkpoint",
	Name:      "created_total",
	Help:      "Checkpoints written, by whether they were signed.",
}, []string{"signed"})

func init() {
	prometheus.MustRegister(CreatedTotal)
}
