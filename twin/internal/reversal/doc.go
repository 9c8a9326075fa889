// Package reversal detects direction reversals (local extrema) in a sample
// stream one point at a time, without buffering the history.
//
// The very first point of a series is always confirmed as a reversal once the
// first direction is known. Every later point becomes the unconfirmed
// "stopper": the provisional last reversal that a future point can still move.
// Callers that need cycles up to "now" append the stopper to the confirmed
// list (Reversals(true)).
//
// Plateaus are detected by exact equality unless a PlateauTolerance is set.
package reversal
