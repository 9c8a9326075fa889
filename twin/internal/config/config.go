package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultMode              = "rainflow"
	DefaultCheckEvery        = 10
	DefaultPruneEvery        = 1000
	DefaultResetEvery        = 10000
	DefaultRangeEpsilon      = 1e-6
	DefaultTemperature       = 298.15
	DefaultMetricsPort       = 9102
	DefaultPollInterval      = 10 * time.Second
	DefaultStepSeconds       = 1.0
	DefaultSocMetric         = "battery_state_of_charge_ratio"
	DefaultTemperatureMetric = "battery_temperature_kelvin"
	DefaultSEIAlpha          = 5.75e-2
	DefaultSEIBeta           = 121
	defaultCalendarTimeK     = 4.14e-10
	defaultCalendarSoCK      = 1.04
	defaultCalendarSoCRef    = 0.5
	defaultTemperatureK      = 6.93e-2
	defaultBolunK1           = 1.4e5
	defaultBolunK2           = -5.01e-1
	defaultBolunK3           = -1.23e5
)

// Stress factor names understood by the aging model.
const (
	FactorTime         = "time"
	FactorSoC          = "soc"
	FactorTemperature  = "temperature"
	FactorDoDBolun     = "dod_bolun"
	FactorDoDQuadratic = "dod_quadratic"
)

// Config is the top-level configuration of the twin binary.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Twin TwinConfig `yaml:"twin"`
}

// TwinConfig holds the run loop, input, output and aging settings.
type TwinConfig struct {
	// BatteryID labels log lines, metrics and report rows.
	BatteryID string `yaml:"battery_id"`

	// CheckEvery is the number of steps between aging evaluations
	// (the do_check cadence).
	CheckEvery int `yaml:"check_every"`

	// PruneEvery is the number of evaluations after which the reported
	// series is written out and pruned to its last point.
	PruneEvery int `yaml:"prune_every"`

	// StepSeconds is the simulated time between two samples, used to derive
	// elapsed time for calendar aging.
	StepSeconds float64 `yaml:"step_seconds"`

	// MetricsPort serves /metrics. Zero disables the listener.
	MetricsPort int `yaml:"metrics_port"`

	Source SourceConfig `yaml:"source"`
	Output OutputConfig `yaml:"output"`
	Aging  AgingConfig  `yaml:"aging"`
	Alerts AlertsConfig `yaml:"alerts"`
}

// SourceConfig describes where samples come from.
type SourceConfig struct {
	// Type is one of: csv | prometheus.
	Type string `yaml:"type"`

	// Path is the CSV file read by the csv source.
	Path string `yaml:"path"`

	// Endpoint is the BMS exporter URL polled by the prometheus source.
	Endpoint string `yaml:"endpoint"`

	// Interval is the poll period of the prometheus source.
	Interval time.Duration `yaml:"interval"`

	// SocMetric and TemperatureMetric name the exporter gauges.
	SocMetric         string `yaml:"soc_metric"`
	TemperatureMetric string `yaml:"temperature_metric"`

	// Labels selects the series of this battery when the exporter serves
	// several. Matching series are averaged.
	Labels map[string]string `yaml:"labels"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for the prometheus source.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Header is the HTTP header name the API key is sent in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return lookupEnv(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return lookupEnv(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return lookupEnv(a.PasswordEnv) }

func lookupEnv(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// OutputConfig names the report files. Empty paths disable a writer.
type OutputConfig struct {
	CSVPath  string `yaml:"csv_path"`
	PromPath string `yaml:"prom_path"`
}

// AlertsConfig holds degradation alert rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold on the latest aging evaluation.
type AlertRule struct {
	// Name identifies the alert and deduplicates it.
	Name string `yaml:"name"`

	// Condition is "field operator value", e.g. "capacity < 0.8" or
	// "degradation >= 0.1". Fields: degradation | capacity | f_cal | f_cyc.
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown is the minimum time between two firings of the rule.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return lookupEnv(w.URLEnv) }

// AgingConfig configures the cycle counter and the stress model.
type AgingConfig struct {
	// Mode selects the counter: rainflow | streamflow.
	Mode string `yaml:"mode"`

	// PlateauTolerance is the largest move treated as "no move" by the
	// reversal detection. Zero means exact equality.
	PlateauTolerance float64 `yaml:"plateau_tolerance"`

	// ResetEvery is the streaming tracker's reset window in samples.
	ResetEvery int `yaml:"reset_every"`

	// RangeEpsilon floors cycle ranges before the DoD stress division.
	RangeEpsilon float64 `yaml:"range_epsilon"`

	// DefaultTemperature (Kelvin) stands in for samples without temperature.
	DefaultTemperature float64 `yaml:"default_temperature"`

	SEI      SEIConfig      `yaml:"sei"`
	Calendar []StressFactor `yaml:"calendar"`
	Cyclic   []StressFactor `yaml:"cyclic"`
}

// SEIConfig holds the SEI film saturation coefficients.
type SEIConfig struct {
	Alpha float64 `yaml:"alpha"`
	Beta  float64 `yaml:"beta"`
}

// StressFactor is one multiplicative term of a stress product.
type StressFactor struct {
	Name string  `yaml:"name"`
	K    float64 `yaml:"k"`
	Ref  float64 `yaml:"ref"`

	// K1..K3 are the DoD model coefficients.
	K1 float64 `yaml:"k1"`
	K2 float64 `yaml:"k2"`
	K3 float64 `yaml:"k3"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Twin: TwinConfig{
			BatteryID:   "battery-0",
			CheckEvery:  DefaultCheckEvery,
			PruneEvery:  DefaultPruneEvery,
			StepSeconds: DefaultStepSeconds,
			MetricsPort: DefaultMetricsPort,
			Source: SourceConfig{
				Interval:          DefaultPollInterval,
				SocMetric:         DefaultSocMetric,
				TemperatureMetric: DefaultTemperatureMetric,
			},
			Aging: DefaultAging(),
		},
	}
}

// DefaultAging returns the Xu et al. (2016) NMC stress model with rainflow
// counting. A stress list given in the config file replaces the default one
// as a whole.
func DefaultAging() AgingConfig {
	return AgingConfig{
		Mode:               DefaultMode,
		ResetEvery:         DefaultResetEvery,
		RangeEpsilon:       DefaultRangeEpsilon,
		DefaultTemperature: DefaultTemperature,
		SEI:                SEIConfig{Alpha: DefaultSEIAlpha, Beta: DefaultSEIBeta},
		Calendar:           DefaultCalendarFactors(),
		Cyclic:             DefaultCyclicFactors(),
	}
}

// DefaultCalendarFactors is the calendar stress product used when the config
// file lists none.
func DefaultCalendarFactors() []StressFactor {
	return []StressFactor{
		{Name: FactorTime, K: defaultCalendarTimeK},
		{Name: FactorSoC, K: defaultCalendarSoCK, Ref: defaultCalendarSoCRef},
		{Name: FactorTemperature, K: defaultTemperatureK, Ref: DefaultTemperature},
	}
}

// DefaultCyclicFactors is the cyclic stress product used when the config
// file lists none.
func DefaultCyclicFactors() []StressFactor {
	return []StressFactor{
		{Name: FactorDoDBolun, K1: defaultBolunK1, K2: defaultBolunK2, K3: defaultBolunK3},
		{Name: FactorSoC, K: defaultCalendarSoCK, Ref: defaultCalendarSoCRef},
		{Name: FactorTemperature, K: defaultTemperatureK, Ref: DefaultTemperature},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	tw := cfg.Twin
	if tw.CheckEvery <= 0 {
		return fmt.Errorf("twin.check_every must be positive")
	}
	if tw.PruneEvery <= 0 {
		return fmt.Errorf("twin.prune_every must be positive")
	}
	if tw.StepSeconds <= 0 {
		return fmt.Errorf("twin.step_seconds must be positive")
	}

	switch tw.Source.Type {
	case "csv":
		if tw.Source.Path == "" {
			return fmt.Errorf("source: path is required for type csv")
		}
	case "prometheus":
		if tw.Source.Endpoint == "" {
			return fmt.Errorf("source: endpoint is required for type prometheus")
		}
		if tw.Source.Interval <= 0 {
			return fmt.Errorf("source: interval must be positive")
		}
	default:
		return fmt.Errorf("source: unknown type %q", tw.Source.Type)
	}
	switch tw.Source.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("source: unknown auth mode %q", tw.Source.Auth.Mode)
	}

	if err := validateAlerts(tw.Alerts); err != nil {
		return err
	}
	return ValidateAging(tw.Aging)
}

// Alert condition fields and operators.
var (
	alertFields    = map[string]bool{"degradation": true, "capacity": true, "f_cal": true, "f_cyc": true}
	alertOperators = map[string]bool{">": true, ">=": true, "<": true, "<=": true, "==": true}
)

func validateAlerts(a AlertsConfig) error {
	seen := make(map[string]bool, len(a.Rules))
	for i, r := range a.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("alerts.rules[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true

		parts := strings.Fields(r.Condition)
		if len(parts) != 3 {
			return fmt.Errorf("alerts.rules[%d] %q: condition must be \"field operator value\"", i, r.Name)
		}
		if !alertFields[parts[0]] {
			return fmt.Errorf("alerts.rules[%d] %q: unknown field %q", i, r.Name, parts[0])
		}
		if !alertOperators[parts[1]] {
			return fmt.Errorf("alerts.rules[%d] %q: unknown operator %q", i, r.Name, parts[1])
		}
		if _, err := strconv.ParseFloat(parts[2], 64); err != nil {
			return fmt.Errorf("alerts.rules[%d] %q: threshold: %w", i, r.Name, err)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range a.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}

// ValidateAging checks the aging section. Unknown stress factor names are a
// fatal configuration error.
func ValidateAging(a AgingConfig) error {
	switch a.Mode {
	case "rainflow", "streamflow":
	default:
		return fmt.Errorf("aging.mode: unknown counter %q", a.Mode)
	}
	if a.ResetEvery < 0 {
		return fmt.Errorf("aging.reset_every must not be negative")
	}
	if a.PlateauTolerance < 0 {
		return fmt.Errorf("aging.plateau_tolerance must not be negative")
	}
	if a.RangeEpsilon <= 0 {
		return fmt.Errorf("aging.range_epsilon must be positive")
	}
	if a.DefaultTemperature <= 0 {
		return fmt.Errorf("aging.default_temperature must be positive (Kelvin)")
	}
	if a.SEI.Alpha < 0 || a.SEI.Alpha > 1 {
		return fmt.Errorf("aging.sei.alpha must be within [0, 1]")
	}
	if a.SEI.Beta <= 0 {
		return fmt.Errorf("aging.sei.beta must be positive")
	}
	for i, f := range a.Calendar {
		switch f.Name {
		case FactorTime, FactorSoC:
		case FactorTemperature:
			if f.Ref <= 0 {
				return fmt.Errorf("aging.calendar[%d] %q: ref must be positive (Kelvin)", i, f.Name)
			}
		default:
			return fmt.Errorf("aging.calendar[%d]: unknown stress factor %q", i, f.Name)
		}
	}
	for i, f := range a.Cyclic {
		switch f.Name {
		case FactorDoDBolun, FactorDoDQuadratic, FactorSoC:
		case FactorTemperature:
			if f.Ref <= 0 {
				return fmt.Errorf("aging.cyclic[%d] %q: ref must be positive (Kelvin)", i, f.Name)
			}
		default:
			return fmt.Errorf("aging.cyclic[%d]: unknown stress factor %q", i, f.Name)
		}
	}
	return nil
}
