package aging

import (
	"math"

	"github.com/obsidianstack/agingtwin/pkg/types"
)

// Accumulator turns closed cycles and elapsed time into a degradation series.
//
// FCyc is a running sum and only grows between resets. FCal depends on the
// total elapsed time and is recomputed on every evaluation.
type Accumulator struct {
	model *Model

	fCal      float64
	fCyc      float64
	deg       float64
	iteration int64
	series    []types.AgingPoint
}

// NewAccumulator returns an empty Accumulator evaluating m.
func NewAccumulator(m *Model) *Accumulator {
	return &Accumulator{model: m}
}

// Accumulate adds the cyclic aging of the closed cycles in cycles and
// evaluates the model at step k. Residual cycles are skipped: they are still
// open and may be reported again.
func (a *Accumulator) Accumulate(cycles []types.Cycle, elapsed, meanSoC, meanTemp float64, k int64) types.AgingPoint {
	var delta float64
	for _, c := range cycles {
		if c.Residual {
			continue
		}
		delta += a.model.CyclicAging(c, meanTemp)
	}
	a.AddCyclic(delta)
	return a.Evaluate(elapsed, meanSoC, meanTemp, k)
}

// AddCyclic adds an already weighted cyclic contribution. Negative and NaN
// deltas are dropped so FCyc stays monotone.
func (a *Accumulator) AddCyclic(delta float64) {
	if delta > 0 && !math.IsInf(delta, 1) {
		a.fCyc += delta
	}
}

// Evaluate recomputes FCal, applies the SEI model and appends the result to
// the series.
func (a *Accumulator) Evaluate(elapsed, meanSoC, meanTemp float64, k int64) types.AgingPoint {
	a.fCal = a.model.CalendarAging(elapsed, meanSoC, meanTemp)
	a.deg = a.model.Degradation(a.fCal + a.fCyc)
	a.iteration++

	p := types.AgingPoint{K: k, Degradation: a.deg, FCal: a.fCal, FCyc: a.fCyc}
	a.series = append(a.series, p)
	return p
}

// State returns the current totals.
func (a *Accumulator) State() types.AgingState {
	return types.AgingState{
		FCal:        a.fCal,
		FCyc:        a.fCyc,
		Degradation: a.deg,
		Iteration:   a.iteration,
	}
}

// Series returns a copy of the evaluations since the last prune.
func (a *Accumulator) Series() []types.AgingPoint {
	out := make([]types.AgingPoint, len(a.series))
	copy(out, a.series)
	return out
}

// Prune keeps only the latest evaluation. Totals are unaffected.
func (a *Accumulator) Prune() {
	if n := len(a.series); n > 1 {
		a.series[0] = a.series[n-1]
		a.series = a.series[:1]
	}
}

// Reset zeroes all totals and the series.
func (a *Accumulator) Reset() {
	a.fCal, a.fCyc, a.deg = 0, 0, 0
	a.iteration = 0
	a.series = a.series[:0]
}
