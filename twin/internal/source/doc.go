// Package source provides the sample streams that drive the aging twin.
//
// csv.go replays a recorded state-of-charge profile from a file. prometheus.go
// polls a battery management system exporter and reads the state of charge
// and temperature gauges from its text exposition. Authentication (mTLS, API
// key, bearer token, basic) is handled by the shared authRoundTripper in
// source.go. Factory: New(config.SourceConfig).
package source
