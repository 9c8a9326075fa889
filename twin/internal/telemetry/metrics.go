package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StepsTotal counts samples fed into an engine.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twin_steps_total",
		Help: "Samples processed by the aging engine",
	}, []string{"battery", "mode"})

	// CyclesClosedTotal counts closed cycles by kind (half | full).
	CyclesClosedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twin_cycles_closed_total",
		Help: "Fatigue cycles closed by the cycle counter",
	}, []string{"battery", "mode", "kind"})

	// EvaluationsTotal counts aging evaluations (do_check steps).
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twin_aging_evaluations_total",
		Help: "Aging model evaluations",
	}, []string{"battery", "mode"})

	// Degradation is the latest degradation fraction.
	Degradation = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "twin_degradation_ratio",
		Help: "Latest capacity degradation fraction in [0, 1]",
	}, []string{"battery", "mode"})

	// CandidateSlots is the streaming tracker's used table size.
	CandidateSlots = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "twin_streamflow_candidate_slots",
		Help: "Used candidate slots in the streaming tracker table",
	}, []string{"battery"})

	// TrackerResetsTotal counts periodic streaming tracker resets.
	TrackerResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "twin_streamflow_resets_total",
		Help: "Periodic resets of the streaming tracker",
	}, []string{"battery"})
)

// CycleKind maps a cycle count to its label value.
func CycleKind(count float64) string {
	if count >= 1 {
		return "full"
	}
	return "half"
}
