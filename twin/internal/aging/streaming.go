package aging

import (
	"log/slog"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
	"github.com/obsidianstack/agingtwin/twin/internal/streamflow"
	"github.com/obsidianstack/agingtwin/twin/internal/telemetry"
)

// StreamingCycleCounter counts cycles with the streaming tracker. Every closed
// half cycle is weighed by the cyclic stress model the moment it closes, so
// memory stays bounded by the candidate table.
type StreamingCycleCounter struct {
	battery     string
	defaultTemp float64

	acc       *Accumulator
	tracker   *streamflow.Tracker
	lastCarry float64
	means     operating
	phase     Phase
}

// NewStreamingCycleCounter returns a streamflow engine for battery.
func NewStreamingCycleCounter(battery string, cfg config.AgingConfig) (*StreamingCycleCounter, error) {
	m, err := NewModel(cfg)
	if err != nil {
		return nil, err
	}
	s := &StreamingCycleCounter{
		battery:     battery,
		defaultTemp: defaultTemperature(cfg),
		acc:         NewAccumulator(m),
	}
	s.tracker = streamflow.New(streamflow.Options{
		ResetEvery:       cfg.ResetEvery,
		PlateauTolerance: cfg.PlateauTolerance,
	}, func(c types.Cycle) float64 {
		return m.CyclicAging(c, s.defaultTemp)
	})
	return s, nil
}

// Step implements Engine.
func (s *StreamingCycleCounter) Step(sample types.Sample, elapsed float64, doCheck bool) (types.AgingPoint, bool) {
	telemetry.StepsTotal.WithLabelValues(s.battery, ModeStreamflow).Inc()
	temp := temperature(sample, s.defaultTemp)
	s.means.add(sample.Value, temp)

	snap := s.tracker.Step(sample.Value, temp)
	s.phase = Accumulating
	if len(snap.Closed) > 0 {
		s.phase = Closing
		telemetry.CyclesClosedTotal.WithLabelValues(s.battery, ModeStreamflow, "half").Add(float64(len(snap.Closed)))
	}
	if snap.Reset {
		telemetry.TrackerResetsTotal.WithLabelValues(s.battery).Inc()
		slog.Debug("aging: streaming tracker reset",
			"battery", s.battery, "index", sample.Index, "carry", s.tracker.Carry())
	}
	telemetry.CandidateSlots.WithLabelValues(s.battery).Set(float64(s.tracker.Len()))

	if !doCheck {
		return types.AgingPoint{}, false
	}

	carry := s.tracker.Carry()
	s.acc.AddCyclic(carry - s.lastCarry)
	s.lastCarry = carry

	p := s.acc.Evaluate(elapsed, s.means.soc, s.means.temp, sample.Index)
	telemetry.EvaluationsTotal.WithLabelValues(s.battery, ModeStreamflow).Inc()
	telemetry.Degradation.WithLabelValues(s.battery, ModeStreamflow).Set(p.Degradation)
	return p, true
}

// Open returns the candidates that are still open, as half cycles.
func (s *StreamingCycleCounter) Open() []types.Cycle { return s.tracker.OpenCycles() }

// State implements Engine.
func (s *StreamingCycleCounter) State() types.AgingState { return s.acc.State() }

// Series implements Engine.
func (s *StreamingCycleCounter) Series() []types.AgingPoint { return s.acc.Series() }

// Phase implements Engine.
func (s *StreamingCycleCounter) Phase() Phase { return s.phase }

// Mode implements Engine.
func (s *StreamingCycleCounter) Mode() string { return ModeStreamflow }

// Prune implements Engine. The candidate table is never compacted mid-run;
// it shrinks on the tracker's periodic reset.
func (s *StreamingCycleCounter) Prune() { s.acc.Prune() }

// Reset implements Engine.
func (s *StreamingCycleCounter) Reset() {
	s.acc.Reset()
	s.tracker.Reset(false)
	s.lastCarry = 0
	s.means.reset()
	s.phase = Empty
}
