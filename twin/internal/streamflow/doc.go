// Package streamflow is the non-compacting, array-based cycle tracker.
//
// Every monotone excursion of the signal opens a Candidate slot in a table
// that only ever grows (geometrically) until the next reset. Slots are never
// removed mid-run: closing a candidate clears its Valid flag and indices stay
// stable. The open candidates other than the active one are also parked in a
// per-direction ordered index, so engulfment only touches the slots it can
// close and Step does not slow down as the table fills.
//
// A candidate closes when a later excursion in the same direction engulfs
// it. Each close is counted as a half cycle and its weighted contribution is
// moved into a scalar carry-over accumulator. Full cycles are never detected
// explicitly, which makes the result an approximation of rainflow counting:
// the number of half cycles and the summed range agree exactly, but the
// pairing differs, so a non-linear stress function reads slightly lower.
//
// Every ResetEvery samples the table is flushed into the carry and re-seeded
// at the current value. Excursions longer than that window are split.
package streamflow
