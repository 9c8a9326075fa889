package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
)

var series = []types.AgingPoint{
	{K: 9, Degradation: 0.001, FCal: 2e-6, FCyc: 1e-5},
	{K: 19, Degradation: 0.0025, FCal: 4e-6, FCyc: 3e-5},
}

func TestCSVWriter_Rows(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf, nil)
	if err := w.Write(series); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	want := "9,0.001,2e-06,1e-05\n19,0.0025,4e-06,3e-05\n"
	if got := buf.String(); got != want {
		t.Errorf("csv = %q, want %q", got, want)
	}
}

func TestOpenCSV_HeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aging.csv")

	for i := 0; i < 2; i++ {
		w, err := OpenCSV(path)
		if err != nil {
			t.Fatalf("OpenCSV() error = %v", err)
		}
		if err := w.Write(series[i : i+1]); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), data)
	}
	if lines[0] != "k,degradation,f_cal,f_cyc" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "19,") {
		t.Errorf("second run appended %q, want the k=19 row", lines[2])
	}
}

func TestPromWriter_LatestPoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twin.prom")
	w := NewPromWriter(path, "cell-7", "rainflow")

	if err := w.Write(nil); err != nil {
		t.Fatalf("Write(nil) error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("Write(nil) created %s", path)
	}

	if err := w.Write(series); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open prom file: %v", err)
	}
	defer f.Close()
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(f)
	if err != nil {
		t.Fatalf("parse prom file: %v", err)
	}

	checks := map[string]float64{
		MetricDegradation: 0.0025,
		MetricFCal:        4e-6,
		MetricFCyc:        3e-5,
		MetricStep:        19,
	}
	for name, want := range checks {
		mf := mfs[name]
		if mf == nil || len(mf.GetMetric()) != 1 {
			t.Errorf("%s: missing or not a single series", name)
			continue
		}
		m := mf.GetMetric()[0]
		if got := m.GetGauge().GetValue(); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		if labels["battery"] != "cell-7" || labels["mode"] != "rainflow" {
			t.Errorf("%s labels = %v", name, labels)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestOpen_Multi(t *testing.T) {
	dir := t.TempDir()
	cfg := config.OutputConfig{
		CSVPath:  filepath.Join(dir, "aging.csv"),
		PromPath: filepath.Join(dir, "twin.prom"),
	}
	w, err := Open(cfg, "cell-7", "streamflow")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(w) != 2 {
		t.Fatalf("got %d writers, want 2", len(w))
	}
	if err := w.Write(series); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	for _, p := range []string{cfg.CSVPath, cfg.PromPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s not written: %v", p, err)
		}
	}

	none, err := Open(config.OutputConfig{}, "cell-7", "rainflow")
	if err != nil || len(none) != 0 {
		t.Errorf("Open(empty) = %v, %v; want no writers", none, err)
	}
}
