package report

import (
	"errors"

	"github.com/obsidianstack/agingtwin/pkg/types"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
)

// Writer persists a slice of the degradation series.
type Writer interface {
	Write(points []types.AgingPoint) error
	Close() error
}

// Multi fans a series out to several writers.
type Multi []Writer

// Open returns the writers enabled in cfg. An empty path disables a writer.
func Open(cfg config.OutputConfig, battery, mode string) (Multi, error) {
	var out Multi
	if cfg.CSVPath != "" {
		w, err := OpenCSV(cfg.CSVPath)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if cfg.PromPath != "" {
		out = append(out, NewPromWriter(cfg.PromPath, battery, mode))
	}
	return out, nil
}

// Write writes points to every writer and joins their errors.
func (m Multi) Write(points []types.AgingPoint) error {
	var errs []error
	for _, w := range m {
		if err := w.Write(points); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
