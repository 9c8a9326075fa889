// Package aging converts counted fatigue cycles into battery degradation.
//
// stress.go holds the pure stress factors of the Xu et al. (2016) model and
// the SEI film saturation function. Model wires the configured factors into
// a calendar product and a cyclic product.
//
// accumulator.go keeps the running cyclic stress, recomputes the calendar
// stress from the elapsed time and appends one AgingPoint per evaluation.
//
// The Engine interface has two implementations: BatchCycleCounter (rainflow
// over the reversal history, exact) and StreamingCycleCounter (streamflow,
// bounded memory, approximate). NewEngine picks one from the config mode.
package aging
