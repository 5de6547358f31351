package events

import "github.com/prometheus/client_golang/prometheus"

var PublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "riskengine",
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Event publish attempts by type and status.",
}, []string{"type", "status"})

func init() {
	prometheus.MustRegister(PublishedTotal)
}
