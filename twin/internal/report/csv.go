package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/obsidianstack/agingtwin/pkg/types"
)

var csvHeader = []string{"k", "degradation", "f_cal", "f_cyc"}

// CSVWriter appends the degradation series to a CSV file, one row per
// evaluation.
type CSVWriter struct {
	f io.Closer
	w *csv.Writer
}

// OpenCSV opens path for appending. A header row is written when the file is
// new or empty.
func OpenCSV(path string) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("report: open csv: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("report: stat csv: %w", err)
	}

	cw := NewCSVWriter(f, f)
	if st.Size() == 0 {
		if err := cw.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("report: write csv header: %w", err)
		}
	}
	return cw, nil
}

// NewCSVWriter writes rows to w without a header. c is closed by Close and
// may be nil.
func NewCSVWriter(w io.Writer, c io.Closer) *CSVWriter {
	return &CSVWriter{f: c, w: csv.NewWriter(w)}
}

// Write appends points and flushes.
func (c *CSVWriter) Write(points []types.AgingPoint) error {
	for _, p := range points {
		row := []string{
			strconv.FormatInt(p.K, 10),
			strconv.FormatFloat(p.Degradation, 'g', -1, 64),
			strconv.FormatFloat(p.FCal, 'g', -1, 64),
			strconv.FormatFloat(p.FCyc, 'g', -1, 64),
		}
		if err := c.w.Write(row); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	if c.f == nil {
		return nil
	}
	return c.f.Close()
}
