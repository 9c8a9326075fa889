package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
)

// ErrMissingMetric is returned when the exporter does not serve the state of
// charge gauge. The poll is lost but the source stays usable.
var ErrMissingMetric = errors.New("metric not exposed")

// promSource polls a BMS exporter for the state of charge and temperature.
// Each successful poll is one sample.
type promSource struct {
	cfg    config.SourceConfig
	client *http.Client

	index int64
	next  time.Time
	now   func() time.Time
}

func newPromSource(cfg config.SourceConfig, client *http.Client) *promSource {
	return &promSource{cfg: cfg, client: client, now: time.Now}
}

// Next waits for the next poll slot, fetches the exporter and returns the
// sample. A failed poll still consumes its slot.
func (s *promSource) Next(ctx context.Context) (types.Sample, error) {
	if wait := s.next.Sub(s.now()); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.Sample{}, ctx.Err()
		case <-timer.C:
		}
	}
	s.next = s.now().Add(s.cfg.Interval)

	mfs, err := fetchMetrics(ctx, s.client, s.cfg.Endpoint)
	if err != nil {
		slog.Warn("source: prometheus fetch failed", "endpoint", s.cfg.Endpoint, "err", err)
		return types.Sample{}, fmt.Errorf("prometheus source %q: %w", s.cfg.Endpoint, err)
	}

	soc, ok := averageFamily(mfs[s.cfg.SocMetric], s.cfg.Labels)
	if !ok {
		return types.Sample{}, fmt.Errorf("prometheus source %q: %s: %w", s.cfg.Endpoint, s.cfg.SocMetric, ErrMissingMetric)
	}
	sample := types.Sample{Value: soc, Index: s.index}
	if temp, ok := averageFamily(mfs[s.cfg.TemperatureMetric], s.cfg.Labels); ok {
		sample.Aux, sample.HasAux = temp, true
	}
	s.index++
	return sample, nil
}

func (s *promSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// averageFamily averages the gauge or untyped values of the series in mf that
// carry every label in match. ok is false when no series matches.
func averageFamily(mf *dto.MetricFamily, match map[string]string) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	var (
		total float64
		n     int
	)
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, match) {
			continue
		}
		switch {
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		default:
			continue
		}
		n++
	}
	if n == 0 {
		return 0, false
	}
	return total / float64(n), true
}

func hasLabels(m *dto.Metric, match map[string]string) bool {
	if len(match) == 0 {
		return true
	}
	found := 0
	for _, lp := range m.GetLabel() {
		if want, ok := match[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			found++
		}
	}
	return found == len(match)
}
