package streamflow

import (
	"math"

	"github.com/obsidianstack/agingtwin/pkg/types"
)

// spanIndex is the ordered set of parked candidates of one direction: open
// candidates that are no longer the active excursion. It is a treap keyed by
// the fixed end of each span. Every node also carries the smallest moving end
// and the largest range of its subtree, so an engulfment query only descends
// into subtrees that can hold a match and the largest parked range is read
// off the root.
//
// Spans are normalised so that "c lies inside the active span" reads
// key >= lo && far < hi in both directions: upward spans map to (Min, Max),
// downward ones to (-Max, -Min).
type spanIndex struct {
	root *node

	// visits counts the nodes touched by inside.
	visits int
}

type node struct {
	key, far, rng float64
	slot          int
	prio          uint64
	left, right   *node

	minFar   float64
	maxRange float64
}

// bounds returns the normalised (key, far) pair of c.
func bounds(c *types.Candidate) (float64, float64) {
	if c.Direction == types.Down {
		return -c.Max, -c.Min
	}
	return c.Min, c.Max
}

func (x *spanIndex) insert(slot int, c *types.Candidate) {
	key, far := bounds(c)
	n := &node{key: key, far: far, rng: c.Range(), slot: slot, prio: mix(uint64(slot))}
	n.update()
	l, r := split(x.root, key, slot)
	x.root = merge(merge(l, n), r)
}

// remove drops slot. c must hold the bounds the slot was inserted with.
func (x *spanIndex) remove(slot int, c *types.Candidate) {
	key, _ := bounds(c)
	l, r := split(x.root, key, slot)
	_, r = split(r, key, slot+1)
	x.root = merge(l, r)
}

// inside appends to out the slots with key >= lo and far < hi, in key order.
func (x *spanIndex) inside(lo, hi float64, out []int) []int {
	return x.walk(x.root, lo, hi, out)
}

func (x *spanIndex) walk(n *node, lo, hi float64, out []int) []int {
	if n == nil {
		return out
	}
	x.visits++
	if n.minFar >= hi {
		return out
	}
	if n.key < lo {
		return x.walk(n.right, lo, hi, out)
	}
	out = x.walk(n.left, lo, hi, out)
	if n.far < hi {
		out = append(out, n.slot)
	}
	return x.walk(n.right, lo, hi, out)
}

// maxRange is the largest parked range, or -Inf when empty.
func (x *spanIndex) maxRange() float64 {
	if x.root == nil {
		return math.Inf(-1)
	}
	return x.root.maxRange
}

func (x *spanIndex) clear() { x.root = nil }

// before orders nodes by (key, slot).
func (n *node) before(key float64, slot int) bool {
	return n.key < key || (n.key == key && n.slot < slot)
}

func (n *node) update() {
	n.minFar, n.maxRange = n.far, n.rng
	for _, c := range [2]*node{n.left, n.right} {
		if c == nil {
			continue
		}
		if c.minFar < n.minFar {
			n.minFar = c.minFar
		}
		if c.maxRange > n.maxRange {
			n.maxRange = c.maxRange
		}
	}
}

// split returns the nodes ordered before (key, slot) and the rest.
func split(n *node, key float64, slot int) (*node, *node) {
	if n == nil {
		return nil, nil
	}
	if n.before(key, slot) {
		l, r := split(n.right, key, slot)
		n.right = l
		n.update()
		return n, r
	}
	l, r := split(n.left, key, slot)
	n.left = r
	n.update()
	return l, n
}

// merge joins two treaps where every node of l is ordered before r.
func merge(l, r *node) *node {
	switch {
	case l == nil:
		return r
	case r == nil:
		return l
	case l.prio > r.prio:
		l.right = merge(l.right, r)
		l.update()
		return l
	default:
		r.left = merge(l, r.left)
		r.update()
		return r
	}
}

// mix is splitmix64; slot numbers are sequential, their priorities must not be.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
