package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
)

// Equal reports whether a and b configure the same counter and stress model.
func (a AgingConfig) Equal(b AgingConfig) bool {
	return a.Mode == b.Mode &&
		a.PlateauTolerance == b.PlateauTolerance &&
		a.ResetEvery == b.ResetEvery &&
		a.RangeEpsilon == b.RangeEpsilon &&
		a.DefaultTemperature == b.DefaultTemperature &&
		a.SEI == b.SEI &&
		slices.Equal(a.Calendar, b.Calendar) &&
		slices.Equal(a.Cyclic, b.Cyclic)
}

// WatchAging monitors the config file at path and calls onChange with the new
// aging section each time an edit changes it, starting from current. Edits
// that only touch other sections, and edits that fail validation, are logged
// and do not call onChange. The parent directory is watched so that saves
// replacing the file are seen as well. WatchAging runs until ctx is cancelled.
func WatchAging(ctx context.Context, path string, current AgingConfig, onChange func(AgingConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watch %s: %w", target, err)
	}
	slog.Info("config: watching aging section", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			next, changed := reloadAging(target, current)
			if !changed {
				continue
			}
			current = next
			onChange(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "path", target, "err", err)
		}
	}
}

// reloadAging loads path and returns its aging section if it differs from
// current.
func reloadAging(path string, current AgingConfig) (AgingConfig, bool) {
	cfg, err := Load(path)
	if err != nil {
		slog.Error("config: reload failed, keeping current aging model",
			"path", path, "err", err)
		return current, false
	}
	if cfg.Twin.Aging.Equal(current) {
		slog.Debug("config: file changed, aging section unchanged", "path", path)
		return current, false
	}
	slog.Info("config: aging section changed",
		"path", path, "mode", cfg.Twin.Aging.Mode)
	return cfg.Twin.Aging, true
}
