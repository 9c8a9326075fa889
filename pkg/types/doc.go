// Package types defines the shared value types passed between the cycle
// counters, the aging model and the report writers.
//
// They are plain in-memory structs: no methods touch global state and every
// type is safe to copy.
package types
