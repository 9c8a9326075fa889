package rainflow

import (
	"math"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/reversal"
)

// Cycle counts.
const (
	Half = 0.5
	Full = 1.0
)

// ExtractNewCycles applies the three-point rule to *reversals and returns the
// cycles it closed followed by the residual half cycles of what is left.
//
// For consecutive reversals x1, x2, x3 with X = |x3-x2| and Y = |x2-x1|:
//   - X < Y: Y may still be absorbed by a larger excursion; move on.
//   - otherwise Y closes. At the head of the list it is a half cycle and only
//     x1 is removed; anywhere else it is a full cycle and x1, x2 are removed.
//
// Fewer than three reversals is not an error; only residuals are returned.
func ExtractNewCycles(reversals *[]types.ReversalPoint) []types.Cycle {
	rs := *reversals
	var out []types.Cycle

	i := 0
	for i+2 < len(rs) {
		p1, p2, p3 := rs[i], rs[i+1], rs[i+2]
		x := math.Abs(p3.Value - p2.Value)
		y := math.Abs(p2.Value - p1.Value)
		if x < y {
			i++
			continue
		}
		if i == 0 {
			out = append(out, newCycle(p1, p2, Half, false))
			rs = append(rs[:0], rs[1:]...)
			continue
		}
		out = append(out, newCycle(p1, p2, Full, false))
		rs = append(rs[:i], rs[i+2:]...)
		// The neighbours of the removed pair now form new triples.
		i -= 2
		if i < 0 {
			i = 0
		}
	}
	*reversals = rs

	return append(out, Residuals(rs)...)
}

// Residuals reports each adjacent pair of rs as an open half cycle, left to
// right. rs is not modified.
func Residuals(rs []types.ReversalPoint) []types.Cycle {
	if len(rs) < 2 {
		return nil
	}
	out := make([]types.Cycle, 0, len(rs)-1)
	for i := 0; i+1 < len(rs); i++ {
		out = append(out, newCycle(rs[i], rs[i+1], Half, true))
	}
	return out
}

// Count detects the reversals of a finished series and returns every cycle,
// the residual tail included. The first and last samples always count as
// reversals.
func Count(series []float64) []types.Cycle {
	d := reversal.New(0)
	for k, v := range series {
		d.AddPoint(v, int64(k))
	}
	rs := d.Reversals(true)
	return ExtractNewCycles(&rs)
}

// Closed filters out residual cycles.
func Closed(cycles []types.Cycle) []types.Cycle {
	var out []types.Cycle
	for _, c := range cycles {
		if !c.Residual {
			out = append(out, c)
		}
	}
	return out
}

// HalfCycles returns the number of half cycles represented by cycles. A
// drained list of R reversals always yields R-1.
func HalfCycles(cycles []types.Cycle) int {
	var n float64
	for _, c := range cycles {
		n += 2 * c.Count
	}
	return int(math.Round(n))
}

func newCycle(a, b types.ReversalPoint, count float64, residual bool) types.Cycle {
	return types.Cycle{
		Range:      math.Abs(b.Value - a.Value),
		Mean:       (a.Value + b.Value) / 2,
		Count:      count,
		StartIndex: a.Index,
		EndIndex:   b.Index,
		Residual:   residual,
	}
}
