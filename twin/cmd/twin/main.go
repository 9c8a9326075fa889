package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsidianstack/agingtwin/twin/internal/config"
	"github.com/obsidianstack/agingtwin/twin/internal/report"
	"github.com/obsidianstack/agingtwin/twin/internal/source"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	debug := flag.Bool("debug", false, "log every aging evaluation")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("agingtwin starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	tw := cfg.Twin
	slog.Info("config loaded",
		"battery", tw.BatteryID,
		"mode", tw.Aging.Mode,
		"source", tw.Source.Type,
		"check_every", tw.CheckEvery,
		"prune_every", tw.PruneEvery,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	src, err := source.New(tw.Source)
	if err != nil {
		slog.Error("failed to open source", "err", err)
		os.Exit(1)
	}
	defer src.Close()

	out, err := report.Open(tw.Output, tw.BatteryID, tw.Aging.Mode)
	if err != nil {
		slog.Error("failed to open report writers", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := out.Close(); err != nil {
			slog.Error("failed to close report writers", "err", err)
		}
	}()

	t, err := newTwin(tw, src, out)
	if err != nil {
		slog.Error("failed to build aging engine", "err", err)
		os.Exit(1)
	}

	// Hot-reload the aging section; other sections need a restart.
	go func() {
		if err := config.WatchAging(ctx, *configPath, tw.Aging, t.reload); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	var metricsSrv *http.Server
	if tw.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf(":%d", tw.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("metrics listening", "port", tw.MetricsPort)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server stopped", "err", err)
			}
		}()
	}

	if err := t.run(ctx); err != nil {
		slog.Error("twin stopped", "err", err)
	}
	st := t.engine.State()
	slog.Info("agingtwin shutting down",
		"steps", t.step, "degradation", st.Degradation, "f_cal", st.FCal, "f_cyc", st.FCyc)

	if metricsSrv != nil {
		metricsSrv.Shutdown(context.Background()) //nolint:errcheck
	}
}
