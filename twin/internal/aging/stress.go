package aging

import (
	"errors"
	"fmt"
	"math"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
)

// ErrUnknownFactor is returned when the configuration names a stress factor
// the model does not implement. It is fatal for the run.
var ErrUnknownFactor = errors.New("unknown stress factor")

// TimeStress is the linear calendar time stress k·t.
func TimeStress(k, elapsed float64) float64 {
	return k * elapsed
}

// SoCStress is exp(k·(soc − ref)).
func SoCStress(k, soc, ref float64) float64 {
	return math.Exp(k * (soc - ref))
}

// TemperatureStress is the Arrhenius-like exp(k·(T − ref)·ref/T), T in Kelvin.
func TemperatureStress(k, temp, ref float64) float64 {
	return math.Exp(k * (temp - ref) * ref / temp)
}

// DoDBolun is the non-linear depth-of-discharge stress (k1·δ^k2 + k3)^-1.
// δ is floored to epsilon so a zero-range cycle cannot blow up the division.
func DoDBolun(k1, k2, k3, depth, epsilon float64) float64 {
	depth = math.Max(depth, epsilon)
	return 1 / (k1*math.Pow(depth, k2) + k3)
}

// DoDQuadratic is the polynomial depth-of-discharge stress k1·δ² + k2·δ.
func DoDQuadratic(k1, k2, depth float64) float64 {
	return k1*depth*depth + k2*depth
}

// SEIDegradation maps the accumulated stress f to a capacity fade fraction
// with the SEI film saturation model
//
//	1 − α·exp(−β·f) − (1 − α)·exp(−f)
//
// clamped to [0, 1]. A NaN stress maps to 0.
func SEIDegradation(alpha, beta, f float64) float64 {
	return clamp01(1 - alpha*math.Exp(-beta*f) - (1-alpha)*math.Exp(-f))
}

// operatingPoint is what a stress factor can look at.
type operatingPoint struct {
	elapsed     float64
	soc         float64
	temperature float64
	depth       float64
}

type stressFunc func(operatingPoint) float64

// Model evaluates the configured calendar and cyclic stress products.
type Model struct {
	calendar []stressFunc
	cyclic   []stressFunc
	alpha    float64
	beta     float64
}

// NewModel builds a Model from cfg. Factor names come from a closed set;
// anything else fails with ErrUnknownFactor.
func NewModel(cfg config.AgingConfig) (*Model, error) {
	eps := cfg.RangeEpsilon
	if eps <= 0 {
		eps = config.DefaultRangeEpsilon
	}

	m := &Model{alpha: cfg.SEI.Alpha, beta: cfg.SEI.Beta}
	for _, f := range cfg.Calendar {
		fn, err := calendarFactor(f)
		if err != nil {
			return nil, err
		}
		m.calendar = append(m.calendar, fn)
	}
	for _, f := range cfg.Cyclic {
		fn, err := cyclicFactor(f, eps)
		if err != nil {
			return nil, err
		}
		m.cyclic = append(m.cyclic, fn)
	}
	return m, nil
}

func calendarFactor(f config.StressFactor) (stressFunc, error) {
	switch f.Name {
	case config.FactorTime:
		return func(p operatingPoint) float64 { return TimeStress(f.K, p.elapsed) }, nil
	case config.FactorSoC:
		return func(p operatingPoint) float64 { return SoCStress(f.K, p.soc, f.Ref) }, nil
	case config.FactorTemperature:
		return func(p operatingPoint) float64 { return TemperatureStress(f.K, p.temperature, f.Ref) }, nil
	default:
		return nil, fmt.Errorf("aging: calendar factor %q: %w", f.Name, ErrUnknownFactor)
	}
}

func cyclicFactor(f config.StressFactor, eps float64) (stressFunc, error) {
	switch f.Name {
	case config.FactorDoDBolun:
		return func(p operatingPoint) float64 { return DoDBolun(f.K1, f.K2, f.K3, p.depth, eps) }, nil
	case config.FactorDoDQuadratic:
		return func(p operatingPoint) float64 { return DoDQuadratic(f.K1, f.K2, p.depth) }, nil
	case config.FactorSoC:
		return func(p operatingPoint) float64 { return SoCStress(f.K, p.soc, f.Ref) }, nil
	case config.FactorTemperature:
		return func(p operatingPoint) float64 { return TemperatureStress(f.K, p.temperature, f.Ref) }, nil
	default:
		return nil, fmt.Errorf("aging: cyclic factor %q: %w", f.Name, ErrUnknownFactor)
	}
}

// CalendarAging is the calendar stress product. It depends on the total
// elapsed time, so callers recompute it rather than accumulate it.
func (m *Model) CalendarAging(elapsed, meanSoC, meanTemp float64) float64 {
	return product(m.calendar, operatingPoint{elapsed: elapsed, soc: meanSoC, temperature: meanTemp})
}

// CyclicAging is count × the cyclic stress product of c. The cycle's own
// temperature mean is used when it has one, meanTemp otherwise.
func (m *Model) CyclicAging(c types.Cycle, meanTemp float64) float64 {
	temp := meanTemp
	if c.HasAux {
		temp = c.AuxMean
	}
	return c.Count * product(m.cyclic, operatingPoint{soc: c.Mean, temperature: temp, depth: c.Range})
}

// Degradation applies the SEI saturation model to the total stress f.
func (m *Model) Degradation(f float64) float64 {
	return SEIDegradation(m.alpha, m.beta, f)
}

func product(fns []stressFunc, p operatingPoint) float64 {
	out := 1.0
	for _, fn := range fns {
		out *= fn(p)
	}
	return out
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
