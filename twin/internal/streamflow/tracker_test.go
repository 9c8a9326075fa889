package streamflow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/rainflow"
)

// rangeWeight weighs a half cycle by count x range, so carries read as
// half the closed range.
func rangeWeight(c types.Cycle) float64 { return c.Count * c.Range }

// bolun is the Xu et al. DoD stress with the default coefficients.
func bolun(c types.Cycle) float64 {
	r := math.Max(c.Range, 1e-6)
	return c.Count / (1.4e5*math.Pow(r, -0.501) - 1.23e5)
}

// twoTone is a state-of-charge profile with a slow and a fast component.
func twoTone(n int) []float64 {
	out := make([]float64, n)
	for k := range out {
		v := 0.5 + 0.3*math.Sin(float64(k)/7) + 0.15*math.Sin(float64(k)/2.3)
		out[k] = math.Round(v*1e6) / 1e6
	}
	return out
}

func ranges(cycles []types.Cycle) []float64 {
	out := make([]float64, len(cycles))
	for i, c := range cycles {
		out[i] = c.Range
	}
	return out
}

func TestTracker_FirstSampleSeedsOnly(t *testing.T) {
	tr := New(Options{}, nil)
	snap := tr.Step(0.5, 298)

	assert.False(t, snap.Changed)
	assert.Empty(t, tr.OpenCycles())
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, -1, tr.Active())
}

func TestTracker_EngulfCarriesHalfCycles(t *testing.T) {
	tr := New(Options{}, rangeWeight)

	var closed [][]types.Cycle
	for _, v := range []float64{0, 10, 5, 8, 2, 9, 1} {
		snap := tr.Step(v, 0)
		closed = append(closed, snap.Closed)
	}

	assert.Empty(t, closed[4])
	assert.Equal(t, []float64{3}, ranges(closed[5]), "rising past 8 engulfs the 5-8 excursion")
	assert.Equal(t, []float64{6}, ranges(closed[6]), "falling past 2 engulfs the 8-2 excursion")
	assert.Equal(t, HalfCount, closed[5][0].Count)

	assert.InDelta(t, 4.5, tr.Carry(), 1e-12)
	assert.Equal(t, []float64{10, 5, 7, 8}, ranges(tr.OpenCycles()))
	assert.InDelta(t, 19.5, tr.Total(), 1e-12)

	// Closed slots stay in the table.
	assert.Equal(t, 6, tr.Len())
	cands := tr.Candidates()
	assert.False(t, cands[2].Valid)
	assert.True(t, cands[2].Used)
}

func TestTracker_OutermostExcursionTakesOverSlot(t *testing.T) {
	tr := New(Options{}, rangeWeight)
	for _, v := range []float64{5, 8, 2, 9} {
		tr.Step(v, 0)
	}

	require.Equal(t, 0, tr.Active(), "the engulfed first slot continues as the active one")
	cands := tr.Candidates()
	require.Len(t, cands, 3)

	a := cands[0]
	assert.True(t, a.Valid)
	assert.Equal(t, types.Up, a.Direction)
	assert.Equal(t, 2.0, a.Min)
	assert.Equal(t, 9.0, a.Max)
	assert.InDelta(t, 8.5, a.Mean, 1e-12)
	assert.Equal(t, uint32(2), a.N)
	assert.Equal(t, int64(0), a.StartIndex)
	assert.Equal(t, int64(3), a.EndIndex)
	assert.False(t, cands[2].Valid)

	assert.InDelta(t, 1.5, tr.Carry(), 1e-12)
	assert.Equal(t, []float64{7, 6}, ranges(tr.OpenCycles()))
}

func TestTracker_PlateauUpdatesMeans(t *testing.T) {
	tr := New(Options{}, nil)
	for _, v := range []float64{0, 1, 1, 1, 2} {
		tr.Step(v, 300)
	}

	cands := tr.Candidates()
	require.Len(t, cands, 1)
	assert.InDelta(t, 1.25, cands[0].Mean, 1e-12)
	assert.Equal(t, uint32(4), cands[0].N)
	assert.Equal(t, 2.0, cands[0].Range())
}

func TestTracker_AuxMean(t *testing.T) {
	tr := New(Options{}, nil)
	tr.Step(0, 300)
	tr.Step(1, 302)
	tr.Step(2, 304)

	open := tr.OpenCycles()
	require.Len(t, open, 1)
	assert.True(t, open[0].HasAux)
	assert.InDelta(t, 303, open[0].AuxMean, 1e-12)
}

func TestTracker_DirectionChangedFlag(t *testing.T) {
	tr := New(Options{}, nil)
	tr.Step(0, 0)
	assert.True(t, tr.Step(1, 0).Changed)
	assert.False(t, tr.Step(2, 0).Changed)
	assert.True(t, tr.Step(1.5, 0).Changed)
}

func TestTracker_TableGrowsGeometrically(t *testing.T) {
	tr := New(Options{InitialCapacity: 2}, nil)
	for k := 0; k < 10; k++ {
		tr.Step(float64(k%2), 0)
	}

	assert.Equal(t, 9, tr.Len())
	assert.GreaterOrEqual(t, tr.Cap(), tr.Len())
	assert.Len(t, tr.OpenCycles(), 9, "equal-height zigzags never engulf each other")
}

func TestTracker_PeriodicResetPreservesTotal(t *testing.T) {
	const window = 40
	series := twoTone(100)

	withReset := New(Options{ResetEvery: window}, bolun)
	reference := New(Options{}, bolun)

	var snap Snapshot
	for _, v := range series[:window] {
		snap = withReset.Step(v, 0)
		reference.Step(v, 0)
	}

	require.True(t, snap.Reset)
	assert.Equal(t, 0, withReset.Len())
	assert.Empty(t, withReset.OpenCycles())
	assert.InEpsilon(t, reference.Total(), withReset.Carry(), 1e-9)
	assert.InEpsilon(t, reference.Total(), withReset.Total(), 1e-9)

	// After the reset the tracker keeps counting from the current value.
	for _, v := range series[window:] {
		withReset.Step(v, 0)
	}
	assert.Greater(t, withReset.Total(), reference.Total())
}

// Streaming pairs each monotone excursion as its own half cycle. The half
// cycle count and the summed range match rainflow exactly; the concave DoD
// stress then reads about 4% low on this profile. 10% is the documented
// tolerance.
func TestTracker_ApproximatesRainflow(t *testing.T) {
	series := twoTone(100)

	var batch, batchRange float64
	cycles := rainflow.Count(series)
	for _, c := range cycles {
		batch += bolun(c)
		batchRange += 2 * c.Count * c.Range
	}

	tr := New(Options{}, bolun)
	for _, v := range series {
		tr.Step(v, 0)
	}
	flushed := tr.Flush()

	var streamRange float64
	for _, c := range tr.Candidates() {
		assert.False(t, c.Valid, "flush closes everything")
	}
	for _, c := range flushed {
		streamRange += c.Range
	}

	assert.InEpsilon(t, batch, tr.Carry(), 0.10)
	assert.LessOrEqual(t, tr.Carry(), batch)
	assert.InDelta(t, batchRange, streamRange+closedRange(t, series), 1e-9)
}

// closedRange replays series and sums the range of the half cycles closed by
// engulfment (flushed ones excluded).
func closedRange(t *testing.T, series []float64) float64 {
	t.Helper()
	tr := New(Options{}, nil)
	var sum float64
	for _, v := range series {
		for _, c := range tr.Step(v, 0).Closed {
			sum += c.Range
		}
	}
	return sum
}

func TestTracker_Reset(t *testing.T) {
	tr := New(Options{}, rangeWeight)
	for _, v := range []float64{0, 10, 5, 8, 2, 9, 1} {
		tr.Step(v, 0)
	}
	require.NotZero(t, tr.Carry())

	tr.Reset(true)
	assert.Equal(t, 0, tr.Len())
	assert.InDelta(t, 4.5, tr.Carry(), 1e-12)

	tr.Reset(false)
	assert.Zero(t, tr.Carry())
	assert.Zero(t, tr.Total())

	tr.Step(3, 0)
	assert.Empty(t, tr.OpenCycles(), "after reset the next sample only seeds")
}

// visitsPerStep feeds warmup samples of gen, then returns the mean number of
// index nodes touched by engulfment over the next steps samples.
func visitsPerStep(gen func(k int) float64, warmup, steps int) (float64, int) {
	tr := New(Options{}, nil)
	for k := 0; k < warmup; k++ {
		tr.Step(gen(k), 0)
	}
	before := tr.up.visits + tr.down.visits
	for k := warmup; k < warmup+steps; k++ {
		tr.Step(gen(k), 0)
	}
	return float64(tr.up.visits+tr.down.visits-before) / float64(steps), tr.Len()
}

func TestTracker_EngulfCostFlatInTableSize(t *testing.T) {
	tests := []struct {
		name string
		gen  func(k int) float64
	}{
		// Equal-height swings never engulf: every slot stays open.
		{"zigzag", func(k int) float64 { return float64(k % 2) }},
		// Charging ramp with ripple: upward excursions pile up, each one
		// starting above the last.
		{"ripple ramp", func(k int) float64 { return 0.001*float64(k) + 0.01*float64(k%2) }},
		{"two tone", func(k int) float64 {
			return 0.5 + 0.3*math.Sin(float64(k)/7) + 0.15*math.Sin(float64(k)/2.3)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			small, smallLen := visitsPerStep(tc.gen, 300, 200)
			large, largeLen := visitsPerStep(tc.gen, 9700, 200)

			require.Greater(t, largeLen, 10*smallLen)
			assert.Less(t, small, 8.0)
			assert.Less(t, large, 8.0)
		})
	}
}

func TestTracker_LargerEnvelopeKeepsActive(t *testing.T) {
	// 0-10 stays open; the 4-6 swing is then engulfed by 3-7, which is still
	// nested inside 0-10, so the active slot does not change.
	tr := New(Options{}, rangeWeight)
	for _, v := range []float64{0, 10, 4, 6, 3, 7} {
		tr.Step(v, 0)
	}

	assert.Equal(t, 4, tr.Active())
	assert.Equal(t, []float64{10, 6, 3, 4}, ranges(tr.OpenCycles()))
	assert.InDelta(t, 1, tr.Carry(), 1e-12)
}
