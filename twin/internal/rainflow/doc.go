// Package rainflow extracts fatigue cycles from a reversal list with the
// ASTM E1049 three-point rule.
//
// ExtractNewCycles is incremental and destructive: closed cycles are removed
// from the caller's list so each is emitted exactly once, while the open tail
// is reported as residual half cycles on every call until later data closes
// it. Count runs the whole pipeline over a finished series.
//
// The pending list is a plain slice with O(n) removal. Reversal lists stay
// short in practice (closed loops are retired as soon as they close), so
// nothing fancier is warranted.
package rainflow
