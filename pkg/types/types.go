package types

// Sample is one time step of the driving signal.
type Sample struct {
	// Value is the driving signal, the state of charge in [0, 1].
	Value float64

	// Aux is the correlated secondary signal (cell temperature in Kelvin).
	// Only meaningful when HasAux is set.
	Aux    float64
	HasAux bool

	// Index is the simulation step k.
	Index int64
}

// ReversalPoint is a confirmed local extremum of the driving signal.
type ReversalPoint struct {
	Index int64
	Value float64
}

// Cycle is a stress excursion between two reversals.
type Cycle struct {
	Range float64 // |max - min|, never negative
	Mean  float64
	Count float64 // 0.5 for a half cycle, 1.0 for a full cycle

	StartIndex int64
	EndIndex   int64

	// AuxMean is the mean of the secondary signal over the excursion.
	// Only the streaming counter tracks it.
	AuxMean float64
	HasAux  bool

	// Residual marks a trailing half cycle that is still open: it is
	// reported so callers can see the stress up to "now", but it has not
	// been closed and may be reported again on the next extraction.
	Residual bool
}

// Direction is the sign of a monotone excursion.
type Direction int8

const (
	Down Direction = -1
	Flat Direction = 0
	Up   Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "flat"
	}
}

// Candidate is a tentatively open excursion held by the streaming tracker.
type Candidate struct {
	Direction Direction
	Min       float64
	Max       float64
	Mean      float64
	AuxMean   float64
	N         uint32

	StartIndex int64
	EndIndex   int64

	// Valid is cleared when the candidate closes; Used marks an occupied slot.
	Valid bool
	Used  bool
}

// Range returns the excursion height.
func (c Candidate) Range() float64 { return c.Max - c.Min }

// AgingPoint is one evaluation of the aging model, as appended to the
// degradation series.
type AgingPoint struct {
	K           int64
	Degradation float64 // always within [0, 1]
	FCal        float64
	FCyc        float64
}

// AgingState is the current state of an aging model.
type AgingState struct {
	FCal        float64
	FCyc        float64 // monotone non-decreasing until reset
	Degradation float64
	Iteration   int64
}
