// Package pipeline sequences the export-ingest-and-publish run:
// collect staged exports, invoke the external site generator, publish the
// bundle to each destination. Collection and publish problems are warnings;
// only a generator failure aborts the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/reqsite/internal/builder"
	"git.home.luguber.info/inful/reqsite/internal/collector"
	"git.home.luguber.info/inful/reqsite/internal/logfields"
	"git.home.luguber.info/inful/reqsite/internal/metrics"
	"git.home.luguber.info/inful/reqsite/internal/publisher"
)

// Collector stages export files into the staging directory.
type Collector interface {
	Collect(ctx context.Context) (*collector.Bundle, error)
}

// Builder produces the static site bundle from staged exports.
type Builder interface {
	Build(ctx context.Context, stagingPath, outputPath string) (*builder.Site, error)
}

// Publisher copies the site bundle to each destination target.
type Publisher interface {
	Publish(ctx context.Context, outputPath string) ([]publisher.DestinationResult, error)
}

// Options adjust a single run.
type Options struct {
	// SkipPublish ends the run after the build stage.
	SkipPublish bool
}

// Pipeline is the orchestrator. It is strictly sequential: each stage
// observes the completed output of the previous one.
type Pipeline struct {
	collector   Collector
	builder     Builder
	publisher   Publisher
	stagingPath string
	outputPath  string
	recorder    metrics.Recorder
}

// New constructs a pipeline. A nil recorder defaults to NoopRecorder.
func New(c Collector, b Builder, p Publisher, stagingPath, outputPath string, recorder metrics.Recorder) *Pipeline {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Pipeline{
		collector:   c,
		builder:     b,
		publisher:   p,
		stagingPath: stagingPath,
		outputPath:  outputPath,
		recorder:    recorder,
	}
}

// Run executes one full pipeline run and always returns a report. The caller
// maps report.Failed() to the process exit code.
func (p *Pipeline) Run(ctx context.Context, opts Options) *RunReport {
	report := newRunReport(uuid.NewString())
	slog.Info("Starting pipeline run", logfields.RunID(report.RunID))

	p.runStage(ctx, report, StageCollect, StateCollecting, func(ctx context.Context) error {
		return p.collect(ctx, report)
	})
	// Collection never aborts: either success or a recorded warning.

	p.runStage(ctx, report, StageBuild, StateBuilding, func(ctx context.Context) error {
		return p.build(ctx, report)
	})
	if state := report.CurrentState(); state == StateFailed {
		report.finish()
		p.finishRun(report)
		return report
	}

	if opts.SkipPublish {
		slog.Info("Publish skipped by request", logfields.RunID(report.RunID))
	} else {
		p.runStage(ctx, report, StagePublish, StatePublishing, func(ctx context.Context) error {
			return p.publish(ctx, report)
		})
		if report.CurrentState() == StateFailed {
			report.finish()
			p.finishRun(report)
			return report
		}
	}

	report.transition(StateDone)
	report.finish()
	p.finishRun(report)
	return report
}

// runStage executes one stage with timing, classification, and metrics. The
// transition to Failed happens only on fatal or canceled stage errors.
func (p *Pipeline) runStage(ctx context.Context, report *RunReport, stage StageName, state State, fn func(context.Context) error) {
	if report.CurrentState() == StateFailed {
		return
	}
	report.transition(state)

	var err error
	select {
	case <-ctx.Done():
		err = newCanceledStageError(stage, ctx.Err())
	default:
		t0 := time.Now()
		err = fn(ctx)
		d := time.Since(t0)
		report.StageDurations[stage] = d
		p.recorder.ObserveStageDuration(string(stage), d)
	}

	report.recordStage(stage, err)
	switch kind := classify(err); kind {
	case "":
		p.recorder.IncStageResult(string(stage), metrics.ResultSuccess)
	case StageErrorWarning:
		p.recorder.IncStageResult(string(stage), metrics.ResultWarning)
		slog.Warn("Stage completed with warning", logfields.Stage(string(stage)), logfields.Error(err))
	case StageErrorCanceled:
		p.recorder.IncStageResult(string(stage), metrics.ResultCanceled)
		report.transition(StateFailed)
	case StageErrorFatal:
		p.recorder.IncStageResult(string(stage), metrics.ResultFatal)
		slog.Error("Stage failed", logfields.Stage(string(stage)), logfields.Error(err))
		report.transition(StateFailed)
	}
}

// classify extracts the stage error kind ("" for success).
func classify(err error) StageErrorKind {
	if err == nil {
		return ""
	}
	if se, ok := err.(*StageError); ok {
		return se.Kind
	}
	return StageErrorFatal
}

// collect stages the export source. All collector errors are downgraded to
// warnings: an absent or partially readable source must not stop the run.
func (p *Pipeline) collect(ctx context.Context, report *RunReport) error {
	bundle, err := p.collector.Collect(ctx)
	if bundle != nil {
		report.FilesStaged = bundle.Files
		p.recorder.AddFilesStaged(bundle.Files)
	}
	if err != nil {
		if ctx.Err() != nil {
			return newCanceledStageError(StageCollect, ctx.Err())
		}
		return newWarnStageError(StageCollect, err)
	}
	return nil
}

// build invokes the external generator. Failure here is the pipeline's only
// fatal condition.
func (p *Pipeline) build(ctx context.Context, report *RunReport) error {
	site, err := p.builder.Build(ctx, p.stagingPath, p.outputPath)
	if site != nil {
		report.GeneratorOutput = site.OutputTail
	}
	if err != nil {
		if ctx.Err() != nil {
			return newCanceledStageError(StageBuild, ctx.Err())
		}
		return newFatalStageError(StageBuild, err)
	}
	return nil
}

// publish copies the bundle to every destination. Per-destination failures
// become one aggregate warning; only cancellation stops the stage.
func (p *Pipeline) publish(ctx context.Context, report *RunReport) error {
	results, err := p.publisher.Publish(ctx, p.outputPath)
	for _, r := range results {
		status := DestinationStatus{
			Name:   r.Destination.DisplayName(),
			Path:   r.Destination.Path,
			Copied: r.Copied,
			Failed: r.Failed,
			OK:     r.OK(),
		}
		if r.Err != nil {
			status.Error = r.Err.Error()
		}
		report.Destinations = append(report.Destinations, status)
		report.FilesPublished += r.Copied
		p.recorder.IncDestinationResult(status.Name, status.OK)
	}
	if err != nil {
		if ctx.Err() != nil {
			return newCanceledStageError(StagePublish, err)
		}
		return newWarnStageError(StagePublish, err)
	}
	failed := 0
	for _, d := range report.Destinations {
		if !d.OK {
			failed++
		}
	}
	if failed > 0 {
		return newWarnStageError(StagePublish, fmt.Errorf("%d of %d destinations failed", failed, len(report.Destinations)))
	}
	return nil
}

// finishRun emits final metrics and the run summary log line.
func (p *Pipeline) finishRun(report *RunReport) {
	p.recorder.ObserveRunDuration(report.Duration())
	p.recorder.IncRunOutcome(string(report.Outcome))
	slog.Info("Pipeline run finished",
		logfields.RunID(report.RunID),
		logfields.Outcome(string(report.Outcome)),
		logfields.DurationMS(float64(report.Duration().Milliseconds())))
}
