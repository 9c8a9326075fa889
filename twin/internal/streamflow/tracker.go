package streamflow

import (
	"math"
	"slices"

	"github.com/obsidianstack/agingtwin/pkg/types"
)

// HalfCount is the count of every cycle the tracker emits.
const HalfCount = 0.5

// Weigher maps a closed half cycle to its cyclic-aging contribution.
type Weigher func(types.Cycle) float64

// Options configures a Tracker.
type Options struct {
	// ResetEvery flushes and re-seeds the tracker after this many samples.
	// Zero disables periodic resets.
	ResetEvery int

	// PlateauTolerance is the largest move treated as "no move".
	PlateauTolerance float64

	// InitialCapacity is the number of pre-allocated candidate slots.
	InitialCapacity int
}

// Snapshot is the tracker state after one Step.
type Snapshot struct {
	// Changed is set when this sample reversed the direction.
	Changed bool

	// Closed holds the half cycles closed by this sample, including those
	// flushed by a periodic reset.
	Closed []types.Cycle

	// Reset is set when this sample triggered a periodic reset.
	Reset bool
}

// Tracker is the streaming cycle tracker. It is not safe for concurrent use.
type Tracker struct {
	opts  Options
	weigh Weigher
	slots *table

	active  int // slot of the excursion in progress, -1 when none
	seeded  bool
	last    float64
	index   int64 // index of the next sample
	sinceRS int   // samples since the last (re-)seed
	carry   float64

	// up and down index the open candidates other than the active one.
	up, down spanIndex
	scratch  []int
}

// New returns a Tracker that weighs closed half cycles with weigh. A nil
// weigh counts each half cycle as its count.
func New(opts Options, weigh Weigher) *Tracker {
	if weigh == nil {
		weigh = func(c types.Cycle) float64 { return c.Count }
	}
	if opts.PlateauTolerance < 0 || math.IsNaN(opts.PlateauTolerance) {
		opts.PlateauTolerance = 0
	}
	return &Tracker{
		opts:   opts,
		weigh:  weigh,
		slots:  newTable(opts.InitialCapacity),
		active: -1,
	}
}

// Step feeds the next sample value with its secondary signal aux.
func (t *Tracker) Step(value, aux float64) Snapshot {
	idx := t.index
	t.index++

	var snap Snapshot
	if !t.seeded {
		t.seed(value)
		return snap
	}
	t.sinceRS++

	delta := value - t.last
	switch {
	case t.flat(delta):
		if t.active >= 0 {
			absorbSample(t.slots.at(t.active), value, aux, idx)
		}

	case t.active < 0 || t.slots.at(t.active).Direction != direction(delta):
		t.park()
		t.active = t.slots.add(types.Candidate{
			Direction:  direction(delta),
			Min:        math.Min(t.last, value),
			Max:        math.Max(t.last, value),
			Mean:       value,
			AuxMean:    aux,
			N:          1,
			StartIndex: idx - 1,
			EndIndex:   idx,
			Valid:      true,
		})
		snap.Changed = true
		snap.Closed = t.engulf()

	default:
		a := t.slots.at(t.active)
		a.Min = math.Min(a.Min, value)
		a.Max = math.Max(a.Max, value)
		absorbSample(a, value, aux, idx)
		snap.Closed = t.engulf()
	}
	t.last = value

	if t.opts.ResetEvery > 0 && t.sinceRS >= t.opts.ResetEvery {
		snap.Closed = append(snap.Closed, t.Flush()...)
		t.slots.clear()
		t.seed(value)
		snap.Reset = true
	}
	return snap
}

// engulf closes every open same-direction candidate that lies inside the
// active excursion. The bound at the moving end is exclusive: a candidate
// closes only once the excursion has gone past its extreme.
func (t *Tracker) engulf() []types.Cycle {
	a := t.slots.at(t.active)
	parked := t.parked(a.Direction)
	lo, hi := bounds(a)
	engulfed := parked.inside(lo, hi, t.scratch[:0])
	t.scratch = engulfed
	if len(engulfed) == 0 {
		return nil
	}
	slices.Sort(engulfed)

	closed := make([]types.Cycle, 0, len(engulfed))
	largest := engulfed[0]
	for _, i := range engulfed {
		c := t.slots.at(i)
		parked.remove(i, c)
		hc := halfCycle(c)
		t.carry += t.weigh(hc)
		closed = append(closed, hc)
		if c.Range() > t.slots.at(largest).Range() {
			largest = i
		}
	}

	if t.largerEnvelope() {
		// The active excursion is itself nested in a bigger open one.
		for _, i := range engulfed {
			t.slots.at(i).Valid = false
		}
		return closed
	}

	// The active excursion is now the outermost one: the largest engulfed
	// slot takes it over and the rest are retired.
	for _, i := range engulfed {
		if i != largest {
			t.slots.at(i).Valid = false
		}
	}
	l := t.slots.at(largest)
	n := float64(l.N) + float64(a.N)
	l.Mean = (l.Mean*float64(l.N) + a.Mean*float64(a.N)) / n
	l.AuxMean = (l.AuxMean*float64(l.N) + a.AuxMean*float64(a.N)) / n
	l.N += a.N
	l.Min, l.Max = a.Min, a.Max
	if a.StartIndex < l.StartIndex {
		l.StartIndex = a.StartIndex
	}
	l.EndIndex = a.EndIndex
	a.Valid = false
	t.active = largest
	return closed
}

// largerEnvelope reports whether a parked candidate is taller than the
// active excursion. Engulfed candidates are shorter and already unparked.
func (t *Tracker) largerEnvelope() bool {
	height := t.slots.at(t.active).Range()
	return t.up.maxRange() > height || t.down.maxRange() > height
}

// park moves the active candidate into its direction's index.
func (t *Tracker) park() {
	if t.active < 0 || !t.slots.open(t.active) {
		return
	}
	c := t.slots.at(t.active)
	t.parked(c.Direction).insert(t.active, c)
}

func (t *Tracker) parked(d types.Direction) *spanIndex {
	if d == types.Down {
		return &t.down
	}
	return &t.up
}

// Flush closes every open candidate into the carry and returns them.
func (t *Tracker) Flush() []types.Cycle {
	var closed []types.Cycle
	for i := 0; i < t.slots.len(); i++ {
		if !t.slots.open(i) {
			continue
		}
		c := halfCycle(t.slots.at(i))
		t.carry += t.weigh(c)
		closed = append(closed, c)
		t.slots.at(i).Valid = false
	}
	t.active = -1
	t.up.clear()
	t.down.clear()
	return closed
}

// OpenCycles returns every valid candidate as a half cycle. It walks the whole
// table and is meant for inspection, not for every step.
func (t *Tracker) OpenCycles() []types.Cycle {
	var out []types.Cycle
	for i := 0; i < t.slots.len(); i++ {
		if t.slots.open(i) {
			out = append(out, halfCycle(t.slots.at(i)))
		}
	}
	return out
}

// Candidates returns a copy of the used slots, closed ones included.
func (t *Tracker) Candidates() []types.Candidate {
	out := make([]types.Candidate, t.slots.len())
	copy(out, t.slots.slots)
	return out
}

// Active returns the slot index of the excursion in progress, or -1.
func (t *Tracker) Active() int { return t.active }

// Carry returns the accumulated contribution of every closed half cycle.
func (t *Tracker) Carry() float64 { return t.carry }

// Total returns the carry plus the weighted open candidates.
func (t *Tracker) Total() float64 {
	total := t.carry
	for _, c := range t.OpenCycles() {
		total += t.weigh(c)
	}
	return total
}

// Len is the number of used slots; Cap the allocated slots.
func (t *Tracker) Len() int { return t.slots.len() }
func (t *Tracker) Cap() int { return t.slots.cap() }

// Reset discards every candidate. With keepCarry the carry-over accumulator
// and the sample index survive.
func (t *Tracker) Reset(keepCarry bool) {
	t.slots.clear()
	t.up.clear()
	t.down.clear()
	t.active = -1
	t.seeded = false
	t.sinceRS = 0
	t.last = 0
	if !keepCarry {
		t.carry = 0
		t.index = 0
	}
}

func (t *Tracker) seed(value float64) {
	t.seeded = true
	t.last = value
	t.active = -1
	t.sinceRS = 1
}

func (t *Tracker) flat(delta float64) bool {
	if t.opts.PlateauTolerance == 0 {
		return delta == 0
	}
	return math.Abs(delta) <= t.opts.PlateauTolerance
}

// absorbSample folds one sample into the running means of c.
func absorbSample(c *types.Candidate, value, aux float64, idx int64) {
	n := float64(c.N)
	c.Mean = (c.Mean*n + value) / (n + 1)
	c.AuxMean = (c.AuxMean*n + aux) / (n + 1)
	c.N++
	c.EndIndex = idx
}

func halfCycle(c *types.Candidate) types.Cycle {
	return types.Cycle{
		Range:      c.Range(),
		Mean:       c.Mean,
		Count:      HalfCount,
		StartIndex: c.StartIndex,
		EndIndex:   c.EndIndex,
		AuxMean:    c.AuxMean,
		HasAux:     true,
	}
}

func direction(delta float64) types.Direction {
	if delta > 0 {
		return types.Up
	}
	return types.Down
}
