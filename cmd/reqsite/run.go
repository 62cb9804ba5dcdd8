package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/reqsite/internal/builder"
	"git.home.luguber.info/inful/reqsite/internal/collector"
	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/history"
	"git.home.luguber.info/inful/reqsite/internal/logfields"
	"git.home.luguber.info/inful/reqsite/internal/metrics"
	"git.home.luguber.info/inful/reqsite/internal/notify"
	"git.home.luguber.info/inful/reqsite/internal/pipeline"
	"git.home.luguber.info/inful/reqsite/internal/publisher"
	"git.home.luguber.info/inful/reqsite/internal/workspace"

	"log/slog"
)

// runner bundles the long-lived pieces shared by single runs and the daemon.
type runner struct {
	cfg         *config.Config
	ws          *workspace.Manager
	checkoutDir string
	recorder    metrics.Recorder
	store       *history.Store
	notifier    *notify.Notifier
}

// ensureDestinations rejects a configuration that would publish nowhere.
func ensureDestinations(cfg *config.Config) error {
	if len(cfg.Destinations) == 0 {
		return fmt.Errorf("no destinations configured (add destinations or use --skip-publish)")
	}
	return nil
}

// newRunner prepares the work directory and the optional history store and
// notifier. History and notification failures are warnings: the pipeline
// must still run without them.
func newRunner(cfg *config.Config, recorder metrics.Recorder) (*runner, error) {
	ws := workspace.NewPersistentManager(".", "work")
	if err := ws.Create(); err != nil {
		return nil, fmt.Errorf("prepare work directory: %w", err)
	}

	checkoutDir, err := ws.CreateSubdir("checkout")
	if err != nil {
		return nil, fmt.Errorf("prepare checkout directory: %w", err)
	}

	r := &runner{cfg: cfg, ws: ws, checkoutDir: checkoutDir, recorder: recorder}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			slog.Warn("Run history unavailable", logfields.Path(cfg.History.Path), logfields.Error(err))
		} else {
			r.store = store
		}
	}

	if cfg.Notify.Enabled {
		notifier, err := notify.New(cfg.Notify)
		if err != nil {
			slog.Warn("Notifications unavailable", logfields.Error(err))
		} else {
			r.notifier = notifier
		}
	}

	return r, nil
}

func (r *runner) close() {
	if r.store != nil {
		_ = r.store.Close()
	}
	if r.notifier != nil {
		_ = r.notifier.Close()
	}
}

// execute performs one pipeline run and records its report.
func (r *runner) execute(ctx context.Context, opts pipeline.Options) *pipeline.RunReport {
	p := pipeline.New(
		collector.New(r.cfg.Source, r.cfg.Staging.Path, r.checkoutDir),
		builder.NewRunner(r.cfg.Generator),
		publisher.New(r.cfg.Destinations),
		r.cfg.Staging.Path,
		r.cfg.Output.Path,
		r.recorder,
	)

	report := p.Run(ctx, opts)

	if err := report.Persist(r.ws.GetPath()); err != nil {
		slog.Warn("Failed to persist run report", logfields.Error(err))
	}
	if r.store != nil {
		if err := r.store.RecordRun(ctx, report); err != nil {
			slog.Warn("Failed to record run history", logfields.Error(err))
		}
	}
	if r.notifier != nil {
		if err := r.notifier.PublishRun(ctx, report); err != nil {
			slog.Warn("Failed to publish run event", logfields.Error(err))
		}
	}

	fmt.Println(report.Summary())
	return report
}

// runOnce executes a single pipeline run. Only a failed (or canceled) run
// returns an error; warnings leave the exit code at zero.
func runOnce(cfg *config.Config, skipPublish bool) error {
	if !skipPublish {
		if err := ensureDestinations(cfg); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(cfg, metrics.NoopRecorder{})
	if err != nil {
		return err
	}
	defer r.close()

	report := r.execute(ctx, pipeline.Options{SkipPublish: skipPublish})
	if report.Failed() {
		return fmt.Errorf("pipeline run %s finished with outcome %s", report.RunID, report.Outcome)
	}
	return nil
}
