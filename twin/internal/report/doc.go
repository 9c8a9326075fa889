// Package report persists the degradation series produced by the aging
// engine: a CSV log of every evaluation and a Prometheus text file holding
// the latest one.
package report
