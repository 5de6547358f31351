package sanctions

import "github.com/prometheus/client_golang/prometheus"

var EntriesAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "riskengine",
	Subsystem: "sanctions",
	Name:      "entries_added_total",
	Help:      "New sanctions entries added.",
})

func init() {
	prometheus.MustRegister(EntriesAddedTotal)
}
