package aging

import (
	"log/slog"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
	"github.com/obsidianstack/agingtwin/twin/internal/rainflow"
	"github.com/obsidianstack/agingtwin/twin/internal/reversal"
	"github.com/obsidianstack/agingtwin/twin/internal/telemetry"
)

// BatchCycleCounter counts cycles with rainflow over the reversal history.
//
// Reversals confirmed between two checks are queued in pending. A check runs
// the three-point rule over pending plus the current stopper; closed cycles
// feed the accumulator and whatever survives stays pending. The stopper is
// only ever the last point of a triple, so it is never consumed.
type BatchCycleCounter struct {
	battery     string
	defaultTemp float64

	acc      *Accumulator
	detector *reversal.Detector
	pending  []types.ReversalPoint
	residual []types.Cycle
	means    operating
	phase    Phase
}

// NewBatchCycleCounter returns a rainflow engine for battery.
func NewBatchCycleCounter(battery string, cfg config.AgingConfig) (*BatchCycleCounter, error) {
	m, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	return &BatchCycleCounter{
		battery:     battery,
		defaultTemp: defaultTemperature(cfg),
		acc:         NewAccumulator(m),
		detector:    reversal.New(cfg.PlateauTolerance),
	}, nil
}

// Step implements Engine.
func (b *BatchCycleCounter) Step(s types.Sample, elapsed float64, doCheck bool) (types.AgingPoint, bool) {
	telemetry.StepsTotal.WithLabelValues(b.battery, ModeRainflow).Inc()
	b.means.add(s.Value, temperature(s, b.defaultTemp))
	b.phase = Accumulating

	if r, ok := b.detector.AddPoint(s.Value, s.Index); ok {
		b.pending = append(b.pending, r)
		// pending owns the history from here on.
		b.detector.Prune()
	}
	if !doCheck {
		return types.AgingPoint{}, false
	}

	closed := b.extract()
	if len(closed) > 0 {
		b.phase = Closing
		for _, c := range closed {
			telemetry.CyclesClosedTotal.WithLabelValues(b.battery, ModeRainflow, telemetry.CycleKind(c.Count)).Inc()
		}
		slog.Debug("aging: cycles closed",
			"battery", b.battery, "mode", ModeRainflow, "closed", len(closed), "pending", len(b.pending))
	}

	p := b.acc.Accumulate(closed, elapsed, b.means.soc, b.means.temp, s.Index)
	telemetry.EvaluationsTotal.WithLabelValues(b.battery, ModeRainflow).Inc()
	telemetry.Degradation.WithLabelValues(b.battery, ModeRainflow).Set(p.Degradation)
	return p, true
}

// extract runs the three-point rule over pending plus the stopper and returns
// the cycles it closed. The residual tail is kept for Residual.
func (b *BatchCycleCounter) extract() []types.Cycle {
	stopper, ok := b.detector.Stopper()
	if !ok {
		return nil
	}
	list := append(b.pending, stopper)
	cycles := rainflow.ExtractNewCycles(&list)
	b.pending = list[:len(list)-1]

	b.residual = b.residual[:0]
	var closed []types.Cycle
	for _, c := range cycles {
		if c.Residual {
			b.residual = append(b.residual, c)
			continue
		}
		closed = append(closed, c)
	}
	return closed
}

// Residual returns the open half cycles reported by the last check.
func (b *BatchCycleCounter) Residual() []types.Cycle {
	out := make([]types.Cycle, len(b.residual))
	copy(out, b.residual)
	return out
}

// Pending returns the reversals still waiting to be paired.
func (b *BatchCycleCounter) Pending() []types.ReversalPoint {
	out := make([]types.ReversalPoint, len(b.pending))
	copy(out, b.pending)
	return out
}

// State implements Engine.
func (b *BatchCycleCounter) State() types.AgingState { return b.acc.State() }

// Series implements Engine.
func (b *BatchCycleCounter) Series() []types.AgingPoint { return b.acc.Series() }

// Phase implements Engine.
func (b *BatchCycleCounter) Phase() Phase { return b.phase }

// Mode implements Engine.
func (b *BatchCycleCounter) Mode() string { return ModeRainflow }

// Prune implements Engine. Pending reversals are kept: they are still needed
// to close cycles later.
func (b *BatchCycleCounter) Prune() {
	b.acc.Prune()
	b.detector.Prune()
}

// Reset implements Engine.
func (b *BatchCycleCounter) Reset() {
	b.acc.Reset()
	b.detector.Reset()
	b.pending = b.pending[:0]
	b.residual = b.residual[:0]
	b.means.reset()
	b.phase = Empty
}
