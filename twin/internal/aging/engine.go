package aging

import (
	"fmt"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
)

// Counter modes.
const (
	ModeRainflow   = "rainflow"
	ModeStreamflow = "streamflow"
)

// Phase is the lifecycle state of an engine.
type Phase int

const (
	// Empty: nothing ingested since construction or the last Reset.
	Empty Phase = iota
	// Accumulating: samples are coming in, no cycle closed on the last step.
	Accumulating
	// Closing: the last step closed at least one cycle.
	Closing
)

func (p Phase) String() string {
	switch p {
	case Empty:
		return "empty"
	case Accumulating:
		return "accumulating"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Engine counts fatigue cycles in a sample stream and converts them into a
// degradation series. An Engine is owned by one goroutine.
type Engine interface {
	// Step ingests one sample. elapsed is the total simulated time in
	// seconds. When doCheck is set the aging model is evaluated and the
	// new point is returned with true.
	Step(s types.Sample, elapsed float64, doCheck bool) (types.AgingPoint, bool)

	State() types.AgingState
	Series() []types.AgingPoint
	Phase() Phase
	Mode() string

	// Prune keeps only the latest series point and drops counting history
	// that can no longer contribute.
	Prune()

	// Reset returns the engine to Empty.
	Reset()
}

// NewEngine builds the engine selected by cfg.Mode for one battery.
func NewEngine(battery string, cfg config.AgingConfig) (Engine, error) {
	switch cfg.Mode {
	case ModeRainflow, "":
		return NewBatchCycleCounter(battery, cfg)
	case ModeStreamflow:
		return NewStreamingCycleCounter(battery, cfg)
	default:
		return nil, fmt.Errorf("aging: unknown mode %q", cfg.Mode)
	}
}

// operating tracks the running means of state of charge and temperature
// since the last reset.
type operating struct {
	n    int64
	soc  float64
	temp float64
}

func (o *operating) add(soc, temp float64) {
	o.n++
	n := float64(o.n)
	o.soc += (soc - o.soc) / n
	o.temp += (temp - o.temp) / n
}

func (o *operating) reset() { *o = operating{} }

// temperature returns the sample's temperature or fallback when it has none.
func temperature(s types.Sample, fallback float64) float64 {
	if s.HasAux {
		return s.Aux
	}
	return fallback
}

func defaultTemperature(cfg config.AgingConfig) float64 {
	if cfg.DefaultTemperature > 0 {
		return cfg.DefaultTemperature
	}
	return config.DefaultTemperature
}
