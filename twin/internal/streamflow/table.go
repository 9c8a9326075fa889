package streamflow

import "github.com/obsidianstack/agingtwin/pkg/types"

// defaultCapacity is the number of slots pre-allocated by a new table.
const defaultCapacity = 64

// table is an arena of candidate slots. Slots are addressed by index and are
// only released all at once by clear.
type table struct {
	slots []types.Candidate
}

func newTable(capacity int) *table {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &table{slots: make([]types.Candidate, 0, capacity)}
}

// add stores c in the next free slot, doubling the arena when it is full,
// and returns the slot index.
func (t *table) add(c types.Candidate) int {
	if len(t.slots) == cap(t.slots) {
		grown := make([]types.Candidate, len(t.slots), 2*cap(t.slots)+1)
		copy(grown, t.slots)
		t.slots = grown
	}
	c.Used = true
	t.slots = append(t.slots, c)
	return len(t.slots) - 1
}

func (t *table) at(i int) *types.Candidate { return &t.slots[i] }

// open reports whether slot i holds a candidate that has not closed.
func (t *table) open(i int) bool {
	return t.slots[i].Used && t.slots[i].Valid
}

// clear releases every slot but keeps the allocation.
func (t *table) clear() {
	for i := range t.slots {
		t.slots[i] = types.Candidate{}
	}
	t.slots = t.slots[:0]
}

func (t *table) len() int { return len(t.slots) }
func (t *table) cap() int { return cap(t.slots) }
