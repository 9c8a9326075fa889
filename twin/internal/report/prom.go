package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/agingtwin/pkg/types"
)

// Metric names written by PromWriter.
const (
	MetricDegradation = "twin_aging_degradation_ratio"
	MetricFCal        = "twin_aging_calendar_stress"
	MetricFCyc        = "twin_aging_cyclic_stress"
	MetricStep        = "twin_aging_step"
)

// PromWriter snapshots the latest aging point as a Prometheus text file, the
// format read by node_exporter's textfile collector. The file is replaced
// atomically on every write.
type PromWriter struct {
	path    string
	battery string
	mode    string
}

// NewPromWriter returns a writer for path. battery and mode become labels.
func NewPromWriter(path, battery, mode string) *PromWriter {
	return &PromWriter{path: path, battery: battery, mode: mode}
}

// Write encodes the last point of points. An empty slice is a no-op.
func (p *PromWriter) Write(points []types.AgingPoint) error {
	if len(points) == 0 {
		return nil
	}
	last := points[len(points)-1]

	var buf bytes.Buffer
	for _, mf := range p.families(last) {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("report: encode %s: %w", mf.GetName(), err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), ".twin-*.prom")
	if err != nil {
		return fmt.Errorf("report: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("report: write prom file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: close prom file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("report: rename prom file: %w", err)
	}
	return nil
}

// Close is a no-op; every Write leaves a complete file behind.
func (p *PromWriter) Close() error { return nil }

func (p *PromWriter) families(pt types.AgingPoint) []*dto.MetricFamily {
	labels := []*dto.LabelPair{label("battery", p.battery), label("mode", p.mode)}
	sort.Slice(labels, func(i, j int) bool { return labels[i].GetName() < labels[j].GetName() })

	return []*dto.MetricFamily{
		gauge(MetricDegradation, "Capacity degradation fraction in [0, 1].", pt.Degradation, labels),
		gauge(MetricFCal, "Calendar aging stress at the last evaluation.", pt.FCal, labels),
		gauge(MetricFCyc, "Accumulated cyclic aging stress.", pt.FCyc, labels),
		gauge(MetricStep, "Simulation step of the last evaluation.", float64(pt.K), labels),
	}
}

func gauge(name, help string, v float64, labels []*dto.LabelPair) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: &name,
		Help: &help,
		Type: dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{
			Label: labels,
			Gauge: &dto.Gauge{Value: &v},
		}},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: &name, Value: &value}
}
