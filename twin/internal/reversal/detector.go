package reversal

import (
	"math"

	"github.com/obsidianstack/agingtwin/pkg/types"
)

// Detector finds reversals in a stream of values.
// A Detector is not safe for concurrent use; each engine owns one.
type Detector struct {
	tolerance float64

	seen      int
	current   types.ReversalPoint // newest point, the stopper
	direction types.Direction     // sign of the last non-flat move
	confirmed []types.ReversalPoint
}

// New returns a Detector. tolerance is the plateau band: a move whose
// absolute size is <= tolerance is not a move. Zero means exact equality.
func New(tolerance float64) *Detector {
	if tolerance < 0 || math.IsNaN(tolerance) {
		tolerance = 0
	}
	return &Detector{tolerance: tolerance}
}

// AddPoint feeds the next sample. It returns the reversal that this point
// confirmed, if any. The confirmed reversal is always an earlier point, never
// the one being added.
//
// A plateau is reported at its last index, and a leading plateau is no
// exception: the first reversal is emitted by the first non-flat move, not
// by the second call, and carries the index where the plateau ended. For
// 1, 1, 1, 2, 0 the first reversal is {Index: 2, Value: 1}, not index 0.
func (d *Detector) AddPoint(value float64, index int64) (types.ReversalPoint, bool) {
	d.seen++
	if d.seen == 1 {
		d.current = types.ReversalPoint{Index: index, Value: value}
		return types.ReversalPoint{}, false
	}

	delta := value - d.current.Value
	if d.isFlat(delta) {
		// Plateau: the stopper slides forward in time but keeps its value.
		d.current.Index = index
		return types.ReversalPoint{}, false
	}

	next := sign(delta)
	var (
		out types.ReversalPoint
		ok  bool
	)
	// The first non-flat move confirms the first point of the series;
	// afterwards only a sign change does.
	if d.direction == types.Flat || next != d.direction {
		out, ok = d.current, true
		d.confirmed = append(d.confirmed, out)
	}
	d.direction = next
	d.current = types.ReversalPoint{Index: index, Value: value}
	return out, ok
}

// Stopper returns the newest point, the provisional last reversal.
func (d *Detector) Stopper() (types.ReversalPoint, bool) {
	return d.current, d.seen > 0
}

// Direction returns the sign of the last non-flat move.
func (d *Detector) Direction() types.Direction { return d.direction }

// Reversals returns a copy of the confirmed reversals, optionally followed by
// the stopper.
func (d *Detector) Reversals(withStopper bool) []types.ReversalPoint {
	out := make([]types.ReversalPoint, len(d.confirmed), len(d.confirmed)+1)
	copy(out, d.confirmed)
	if withStopper && d.seen > 0 {
		out = append(out, d.current)
	}
	return out
}

// Prune drops the confirmed history except the most recent reversal. The
// stopper and direction survive, so detection continues seamlessly.
func (d *Detector) Prune() {
	if n := len(d.confirmed); n > 1 {
		last := d.confirmed[n-1]
		d.confirmed = d.confirmed[:1]
		d.confirmed[0] = last
	}
}

// Reset discards all state.
func (d *Detector) Reset() {
	d.seen = 0
	d.current = types.ReversalPoint{}
	d.direction = types.Flat
	d.confirmed = d.confirmed[:0]
}

func (d *Detector) isFlat(delta float64) bool {
	if d.tolerance == 0 {
		return delta == 0
	}
	return math.Abs(delta) <= d.tolerance
}

func sign(v float64) types.Direction {
	switch {
	case v > 0:
		return types.Up
	case v < 0:
		return types.Down
	default:
		return types.Flat
	}
}
