// Package config loads and watches the twin configuration file (config.yaml).
//
// Top-level types:
//   - Config{Twin} — full config tree parsed from YAML
//   - TwinConfig — battery_id, check_every, prune_every, step_seconds,
//     metrics_port, source, output, aging, alerts
//   - SourceConfig — type (csv|prometheus), path, endpoint, interval, gauge
//     names, label matchers, auth, tls
//   - AgingConfig — counter mode (rainflow|streamflow), plateau tolerance,
//     reset window, range epsilon, SEI coefficients and the calendar/cyclic
//     stress factor lists
//   - AlertsConfig — threshold rules ("capacity < 0.8") and webhook targets
//
// Load(path) reads the YAML file, applies defaults (rainflow counting and the
// Xu et al. NMC stress model), then validates required fields and enums. An
// unknown stress factor name is a fatal configuration error.
//
// WatchAging(ctx, path, current, onChange) uses fsnotify to detect edits and
// calls onChange with the aging section whenever a valid edit changed it.
package config
