package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/obsidianstack/agingtwin/pkg/types"
)

// Column names recognised in a CSV header.
const (
	colIndex       = "index"
	colSoC         = "soc"
	colTemperature = "temperature"
)

// csvSource replays a recorded profile. Without a header row the columns are
// positional: index, soc, temperature. The temperature column is optional and
// an empty cell means "no temperature" for that row.
type csvSource struct {
	f    io.Closer
	r    *csv.Reader
	line int
	row  int64

	idx, soc, temp int // column positions, -1 when absent
	pending        []string
}

func openCSV(path string) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv source: open: %w", err)
	}
	s, err := newCSVSource(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func newCSVSource(r io.Reader, c io.Closer) (*csvSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	s := &csvSource{f: c, r: cr, idx: 0, soc: 1, temp: 2}
	first, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv source: read header: %w", err)
	}
	s.line = 1

	if _, err := strconv.ParseFloat(strings.TrimSpace(first[0]), 64); err == nil {
		s.pending = first
		return s, nil
	}
	s.idx, s.soc, s.temp = -1, -1, -1
	for i, name := range first {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case colIndex, "k", "step":
			s.idx = i
		case colSoC, "state_of_charge":
			s.soc = i
		case colTemperature, "temp":
			s.temp = i
		}
	}
	if s.soc < 0 {
		return nil, fmt.Errorf("csv source: header has no %q column", colSoC)
	}
	return s, nil
}

// Next returns the next row, or io.EOF at the end of the file.
func (s *csvSource) Next(ctx context.Context) (types.Sample, error) {
	if err := ctx.Err(); err != nil {
		return types.Sample{}, err
	}

	rec := s.pending
	s.pending = nil
	if rec == nil {
		var err error
		rec, err = s.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return types.Sample{}, io.EOF
			}
			return types.Sample{}, fmt.Errorf("csv source: %w", err)
		}
		s.line++
	}

	sample := types.Sample{Index: s.row}
	var err error
	if sample.Value, err = s.float(rec, s.soc); err != nil {
		return types.Sample{}, err
	}
	if s.idx >= 0 && s.idx < len(rec) {
		v, err := strconv.ParseInt(strings.TrimSpace(rec[s.idx]), 10, 64)
		if err != nil {
			return types.Sample{}, fmt.Errorf("csv source: line %d: index: %w", s.line, err)
		}
		sample.Index = v
	}
	if s.temp >= 0 && s.temp < len(rec) && strings.TrimSpace(rec[s.temp]) != "" {
		if sample.Aux, err = s.float(rec, s.temp); err != nil {
			return types.Sample{}, err
		}
		sample.HasAux = true
	}
	s.row++
	return sample, nil
}

func (s *csvSource) float(rec []string, col int) (float64, error) {
	if col >= len(rec) {
		return 0, fmt.Errorf("csv source: line %d: missing column %d", s.line, col)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
	if err != nil {
		return 0, fmt.Errorf("csv source: line %d: %w", s.line, err)
	}
	return v, nil
}

func (s *csvSource) Close() error { return s.f.Close() }
