// Package daemon runs the pipeline on an interval, optionally re-triggering
// on source changes, and serves health and metrics endpoints.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/logfields"
	"git.home.luguber.info/inful/reqsite/internal/metrics"
	"git.home.luguber.info/inful/reqsite/internal/pipeline"
)

// RunFunc executes one pipeline run and returns its report.
type RunFunc func(ctx context.Context) *pipeline.RunReport

// Daemon schedules periodic runs. Triggers arriving while a run is in
// flight coalesce into at most one follow-up run.
type Daemon struct {
	cfg      config.DaemonConfig
	source   config.SourceConfig
	runFunc  RunFunc
	registry *prometheus.Registry

	scheduler gocron.Scheduler
	watcher   *SourceWatcher
	server    *http.Server

	triggerChan chan struct{}
	stopChan    chan struct{}
	wg          sync.WaitGroup

	mu      sync.RWMutex
	lastRun *pipeline.RunReport
}

// New creates a daemon. The registry may be nil when metrics are served
// elsewhere; /metrics then returns 404.
func New(cfg config.DaemonConfig, source config.SourceConfig, runFunc RunFunc, registry *prometheus.Registry) (*Daemon, error) {
	if runFunc == nil {
		return nil, fmt.Errorf("run function is required")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Daemon{
		cfg:         cfg,
		source:      source,
		runFunc:     runFunc,
		registry:    registry,
		scheduler:   scheduler,
		triggerChan: make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
	}, nil
}

// Start launches the run loop, the interval job, the optional source
// watcher, and the HTTP listener. It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	d.wg.Add(1)
	go d.runLoop(ctx)

	if _, err := d.scheduler.NewJob(
		gocron.DurationJob(d.cfg.Interval.Std()),
		gocron.NewTask(d.Trigger),
		gocron.WithName("periodic-run"),
	); err != nil {
		return fmt.Errorf("create periodic run job: %w", err)
	}
	d.scheduler.Start()
	slog.Info("Scheduled periodic runs", "interval", d.cfg.Interval)

	if d.cfg.WatchSource && d.source.Path != "" {
		watcher, err := NewSourceWatcher(d.source.Path, d.Trigger)
		if err != nil {
			return fmt.Errorf("create source watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start source watcher: %w", err)
		}
		d.watcher = watcher
	}

	if d.cfg.Listen != "" {
		d.server = &http.Server{
			Addr:              d.cfg.Listen,
			Handler:           d.httpHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			slog.Info("HTTP listener started", "addr", d.cfg.Listen)
			if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP listener failed", logfields.Error(err))
			}
		}()
	}

	// Run once at startup so a fresh daemon publishes without waiting a
	// full interval.
	d.Trigger()
	return nil
}

// Trigger requests a pipeline run. It never blocks: if a run is already
// pending the request is absorbed.
func (d *Daemon) Trigger() {
	select {
	case d.triggerChan <- struct{}{}:
	default:
	}
}

// Stop shuts down the scheduler, watcher, HTTP server, and run loop. Any
// in-flight run finishes first.
func (d *Daemon) Stop(ctx context.Context) error {
	slog.Info("Stopping daemon")

	if err := d.scheduler.Shutdown(); err != nil {
		slog.Error("Scheduler shutdown failed", logfields.Error(err))
	}
	if d.watcher != nil {
		d.watcher.Stop()
	}
	if d.server != nil {
		if err := d.server.Shutdown(ctx); err != nil {
			slog.Error("HTTP shutdown failed", logfields.Error(err))
		}
	}

	close(d.stopChan)
	d.wg.Wait()
	return nil
}

// LastRun returns the report of the most recent completed run, or nil.
func (d *Daemon) LastRun() *pipeline.RunReport {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastRun
}

func (d *Daemon) runLoop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case <-d.triggerChan:
			report := d.runFunc(ctx)
			d.mu.Lock()
			d.lastRun = report
			d.mu.Unlock()
			if report != nil && report.Failed() {
				slog.Error("Scheduled run failed",
					logfields.RunID(report.RunID),
					logfields.Outcome(string(report.Outcome)))
			}
		}
	}
}

func (d *Daemon) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", d.handleHealthz)
	if d.registry != nil {
		mux.Handle("/metrics", metrics.HTTPHandler(d.registry))
	}
	return mux
}

// handleHealthz reports 200 while the daemon is up. The body carries the
// outcome of the last run for quick inspection.
func (d *Daemon) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	last := d.LastRun()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if last == nil {
		fmt.Fprintln(w, "ok (no runs yet)")
		return
	}
	fmt.Fprintf(w, "ok last_run=%s outcome=%s\n", last.RunID, last.Outcome)
}
