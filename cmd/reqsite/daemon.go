package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"log/slog"

	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/daemon"
	"git.home.luguber.info/inful/reqsite/internal/metrics"
	"git.home.luguber.info/inful/reqsite/internal/pipeline"
)

// runDaemon runs the pipeline continuously until interrupted.
func runDaemon(cfg *config.Config) error {
	if err := ensureDestinations(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	r, err := newRunner(cfg, recorder)
	if err != nil {
		return err
	}
	defer r.close()

	runFunc := func(ctx context.Context) *pipeline.RunReport {
		return r.execute(ctx, pipeline.Options{})
	}

	d, err := daemon.New(cfg.Daemon, cfg.Source, runFunc, registry)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}

	slog.Info("Daemon started", "interval", cfg.Daemon.Interval, "listen", cfg.Daemon.Listen)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return d.Stop(shutdownCtx)
}
