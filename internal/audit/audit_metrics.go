package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AppendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskengine",
		Subsystem: "audit",
		Name:      "appends_total",
		Help:      "Audit events appended, by event type.",
	}, []string{"event_type"})

	VerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskengine",
		Subsystem: "audit",
		Name:      "verifications_total",
		Help:      "Chain verifications, by result.",
	}, []string{"result"})

	OpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "riskengine",
		Subsystem: "audit",
		Name:      "operation_duration_seconds",
		Help:      "Duration of audit ledger operations.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(AppendsTotal, VerificationsTotal, OpDuration)
}

// observeOp times an operation; call the returned func when it finishes.
func observeOp(op string) func() {
	start := time.Now()
	return func() {
		OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}
