package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/obsidianstack/agingtwin/twin/internal/config"
)

// bmsMetrics is a battery exporter serving two packs.
const bmsMetrics = `
# HELP battery_state_of_charge_ratio State of charge in [0, 1].
# TYPE battery_state_of_charge_ratio gauge
battery_state_of_charge_ratio{pack="a",cell="1"} 0.60
battery_state_of_charge_ratio{pack="a",cell="2"} 0.64
battery_state_of_charge_ratio{pack="b",cell="1"} 0.20

# HELP battery_temperature_kelvin Cell temperature.
# TYPE battery_temperature_kelvin gauge
battery_temperature_kelvin{pack="a",cell="1"} 300
battery_temperature_kelvin{pack="a",cell="2"} 302
battery_temperature_kelvin{pack="b",cell="1"} 290

# HELP battery_charge_cycles_total Charge cycles reported by the BMS.
# TYPE battery_charge_cycles_total counter
battery_charge_cycles_total{pack="a"} 412
`

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func promConfig(endpoint string) config.SourceConfig {
	return config.SourceConfig{
		Type:              "prometheus",
		Endpoint:          endpoint,
		SocMetric:         config.DefaultSocMetric,
		TemperatureMetric: config.DefaultTemperatureMetric,
	}
}

func TestPromSource_Next(t *testing.T) {
	srv := serve(t, bmsMetrics)
	cfg := promConfig(srv.URL)
	cfg.Labels = map[string]string{"pack": "a"}
	s := newPromSource(cfg, srv.Client())

	smp, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if d := smp.Value - 0.62; d > 1e-12 || d < -1e-12 {
		t.Errorf("soc = %v, want mean of pack a 0.62", smp.Value)
	}
	if !smp.HasAux || smp.Aux != 301 {
		t.Errorf("temperature = %v (has %v), want 301", smp.Aux, smp.HasAux)
	}
	if smp.Index != 0 {
		t.Errorf("index = %d, want 0", smp.Index)
	}

	smp, err = s.Next(context.Background())
	if err != nil {
		t.Fatalf("second Next() error = %v", err)
	}
	if smp.Index != 1 {
		t.Errorf("second index = %d, want 1", smp.Index)
	}
}

func TestPromSource_NoLabelsAveragesAll(t *testing.T) {
	srv := serve(t, bmsMetrics)
	s := newPromSource(promConfig(srv.URL), srv.Client())

	smp, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if d := smp.Value - 0.48; d > 1e-12 || d < -1e-12 {
		t.Errorf("soc = %v, want 0.48", smp.Value)
	}
}

func TestPromSource_MissingTemperature(t *testing.T) {
	srv := serve(t, "battery_state_of_charge_ratio 0.5\n")
	s := newPromSource(promConfig(srv.URL), srv.Client())

	smp, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if smp.HasAux {
		t.Errorf("HasAux = true without a temperature gauge")
	}
}

func TestPromSource_MissingSoC(t *testing.T) {
	srv := serve(t, bmsMetrics)
	cfg := promConfig(srv.URL)
	cfg.Labels = map[string]string{"pack": "c"}
	s := newPromSource(cfg, srv.Client())

	_, err := s.Next(context.Background())
	if !errors.Is(err, ErrMissingMetric) {
		t.Fatalf("Next() error = %v, want ErrMissingMetric", err)
	}
}

func TestPromSource_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	s := newPromSource(promConfig(srv.URL), srv.Client())

	if _, err := s.Next(context.Background()); err == nil {
		t.Fatal("expected error for 503, got nil")
	}
}

func TestPromSource_WaitsForInterval(t *testing.T) {
	srv := serve(t, bmsMetrics)
	cfg := promConfig(srv.URL)
	cfg.Interval = time.Hour
	s := newPromSource(cfg, srv.Client())

	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("first Next() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Next() = %v, want the context deadline", err)
	}
}

func TestPromSource_BearerAuth(t *testing.T) {
	t.Setenv("TWIN_TEST_TOKEN", "s3cret")
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		_, _ = w.Write([]byte(bmsMetrics))
	}))
	defer srv.Close()

	cfg := promConfig(srv.URL)
	cfg.Auth = config.AuthConfig{Mode: "bearer", TokenEnv: "TWIN_TEST_TOKEN"}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got := <-gotAuth; got != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer s3cret")
	}
}
