package decisions

import "github.com/prometheus/client_golang/prometheus"

var (
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskengine",
		Subsystem: "decisions",
		Name:      "total",
		Help:      "Committed decisions by outcome.",
	}, []string{"outcome"})

	ReplaysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riskengine",
		Subsystem: "decisions",
		Name:      "idempotent_replays_total",
		Help:      "Evaluations answered from a stored idempotency record.",
	})

	ConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riskengine",
		Subsystem: "decisions",
		Name:      "idempotency_conflicts_total",
		Help:      "Evaluations rejected because the key was reused with a different payload.",
	})

	CaseResolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskengine",
		Subsystem: "cases",
		Name:      "resolutions_total",
		Help:      "Resolved cases by resolution.",
	}, []string{"resolution"})

	EvaluateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskengine",
		Subsystem: "decisions",
		Name:      "evaluate_duration_seconds",
		Help:      "Latency of first-time evaluations, including persistence.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

func init() {
	prometheus.MustRegister(DecisionsTotal, ReplaysTotal, ConflictsTotal, CaseResolutionsTotal, EvaluateDuration)
}
