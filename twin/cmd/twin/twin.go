package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/obsidianstack/agingtwin/twin/internal/aging"
	"github.com/obsidianstack/agingtwin/twin/internal/alerts"
	"github.com/obsidianstack/agingtwin/twin/internal/config"
	"github.com/obsidianstack/agingtwin/twin/internal/report"
	"github.com/obsidianstack/agingtwin/twin/internal/source"
)

// twin drives one battery: source → engine → report and alerts.
type twin struct {
	cfg    config.TwinConfig
	src    source.Source
	engine aging.Engine
	out    report.Writer
	alerts *alerts.Engine

	// reloads carries aging sections from the config watcher.
	reloads chan config.AgingConfig

	step     int64
	stepBase int64 // step at which the current engine started
	evals    int
	carried  bool // the series head was written by the previous flush
}

func newTwin(cfg config.TwinConfig, src source.Source, out report.Writer) (*twin, error) {
	engine, err := aging.NewEngine(cfg.BatteryID, cfg.Aging)
	if err != nil {
		return nil, err
	}
	return &twin{
		cfg:     cfg,
		src:     src,
		engine:  engine,
		out:     out,
		alerts:  alerts.New(cfg.BatteryID, cfg.Alerts),
		reloads: make(chan config.AgingConfig, 1),
	}, nil
}

// reload queues a new aging section. Only the latest one is kept.
func (t *twin) reload(a config.AgingConfig) {
	select {
	case <-t.reloads:
	default:
	}
	t.reloads <- a
}

// run steps the engine until the source is exhausted or ctx is cancelled,
// then writes out what is left of the series.
func (t *twin) run(ctx context.Context) error {
	defer t.alerts.Wait()
	for {
		select {
		case a := <-t.reloads:
			if err := t.swapEngine(a); err != nil {
				slog.Error("twin: reload rejected", "battery", t.cfg.BatteryID, "err", err)
			}
		default:
		}

		s, err := t.src.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			slog.Info("twin: source exhausted", "battery", t.cfg.BatteryID, "steps", t.step)
			return t.flush()
		case ctx.Err() != nil:
			return t.flush()
		case err != nil:
			slog.Warn("twin: sample skipped", "battery", t.cfg.BatteryID, "err", err)
			continue
		}

		t.step++
		elapsed := float64(t.step-t.stepBase) * t.cfg.StepSeconds
		doCheck := t.step%int64(t.cfg.CheckEvery) == 0
		p, ok := t.engine.Step(s, elapsed, doCheck)
		if !ok {
			continue
		}
		t.evals++
		t.alerts.Evaluate(p)
		slog.Debug("twin: evaluated",
			"battery", t.cfg.BatteryID, "k", p.K, "degradation", p.Degradation,
			"f_cal", p.FCal, "f_cyc", p.FCyc, "phase", t.engine.Phase())
		if t.evals%t.cfg.PruneEvery == 0 {
			if err := t.flush(); err != nil {
				return err
			}
		}
	}
}

// flush writes the points not yet written and prunes the series to its last
// point.
func (t *twin) flush() error {
	pts := t.engine.Series()
	if t.carried && len(pts) > 0 {
		pts = pts[1:]
	}
	if err := t.out.Write(pts); err != nil {
		return fmt.Errorf("twin: write series: %w", err)
	}
	t.engine.Prune()
	t.carried = len(t.engine.Series()) > 0
	return nil
}

// swapEngine applies a reloaded aging section. Changed coefficients only take
// effect through a full reset, so the current series is written out first and
// a fresh engine starts at the next sample, with its own zero of calendar
// time.
func (t *twin) swapEngine(a config.AgingConfig) error {
	if a.Equal(t.cfg.Aging) {
		return nil
	}
	engine, err := aging.NewEngine(t.cfg.BatteryID, a)
	if err != nil {
		return err
	}
	if err := t.flush(); err != nil {
		return err
	}
	slog.Info("twin: aging model reloaded, engine reset",
		"battery", t.cfg.BatteryID, "mode", engine.Mode(), "state", t.engine.State())
	t.cfg.Aging = a
	t.engine = engine
	t.stepBase = t.step
	t.carried = false
	t.evals = 0
	return nil
}
