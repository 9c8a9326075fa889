// Package telemetry holds the process-wide Prometheus collectors updated by
// the aging engines and served by the twin binary at /metrics.
package telemetry
