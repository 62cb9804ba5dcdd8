package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/reqsite/internal/builder"
	"git.home.luguber.info/inful/reqsite/internal/collector"
	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/publisher"
)

type stubCollector struct {
	bundle *collector.Bundle
	err    error
	calls  int
}

func (s *stubCollector) Collect(context.Context) (*collector.Bundle, error) {
	s.calls++
	return s.bundle, s.err
}

type stubBuilder struct {
	site  *builder.Site
	err   error
	calls int
}

func (s *stubBuilder) Build(context.Context, string, string) (*builder.Site, error) {
	s.calls++
	return s.site, s.err
}

type stubPublisher struct {
	results []publisher.DestinationResult
	err     error
	calls   int
}

func (s *stubPublisher) Publish(context.Context, string) ([]publisher.DestinationResult, error) {
	s.calls++
	return s.results, s.err
}

func okResults() []publisher.DestinationResult {
	return []publisher.DestinationResult{
		{Destination: config.Destination{Name: "eng", Path: "/eng"}, Copied: 2},
		{Destination: config.Destination{Name: "qa", Path: "/qa"}, Copied: 2},
	}
}

func newTestPipeline(c Collector, b Builder, p Publisher) *Pipeline {
	return New(c, b, p, "/staging", "/output", nil)
}

func TestRun_HappyPath(t *testing.T) {
	c := &stubCollector{bundle: &collector.Bundle{Files: 3}}
	b := &stubBuilder{site: &builder.Site{OutputPath: "/output"}}
	p := &stubPublisher{results: okResults()}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{})
	require.Equal(t, OutcomeSuccess, report.Outcome)
	require.False(t, report.Failed())
	require.Equal(t, []State{StateIdle, StateCollecting, StateBuilding, StatePublishing, StateDone}, report.Transitions)
	require.Equal(t, 3, report.FilesStaged)
	require.Equal(t, 4, report.FilesPublished)
	require.Len(t, report.Destinations, 2)
}

func TestRun_CollectionWarningStillBuilds(t *testing.T) {
	c := &stubCollector{bundle: &collector.Bundle{}, err: errors.New("source unavailable")}
	b := &stubBuilder{site: &builder.Site{}}
	p := &stubPublisher{results: okResults()}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{})
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.False(t, report.Failed())
	require.Equal(t, 1, b.calls)
	require.Equal(t, 1, p.calls)
	require.Len(t, report.Warnings, 1)
	require.Equal(t, StageErrorWarning, report.StageErrorKinds[StageCollect])
}

func TestRun_BuildFailureSkipsPublisher(t *testing.T) {
	c := &stubCollector{bundle: &collector.Bundle{Files: 1}}
	b := &stubBuilder{err: builder.ErrGeneratorFailed}
	p := &stubPublisher{results: okResults()}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{})
	require.Equal(t, OutcomeFailed, report.Outcome)
	require.True(t, report.Failed())
	// The publisher must never be invoked after a build failure.
	require.Zero(t, p.calls)
	require.Equal(t, []State{StateIdle, StateCollecting, StateBuilding, StateFailed}, report.Transitions)
	require.Equal(t, StageErrorFatal, report.StageErrorKinds[StageBuild])
}

func TestRun_EmptySourceThenBuildFailureScenario(t *testing.T) {
	// Source unreadable -> collection warning, builder fails on empty
	// staging input -> publisher never runs, non-zero exit.
	c := &stubCollector{err: errors.New("source unavailable")}
	b := &stubBuilder{err: errors.New("no hierarchy.yaml found")}
	p := &stubPublisher{}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{})
	require.True(t, report.Failed())
	require.Zero(t, p.calls)
	require.Len(t, report.Warnings, 1)
	require.Len(t, report.Errors, 1)
}

func TestRun_DestinationFailureIsWarningAndAllAttempted(t *testing.T) {
	results := okResults()
	results[0].Err = errors.New("share offline")
	results[0].Copied = 0
	c := &stubCollector{bundle: &collector.Bundle{Files: 1}}
	b := &stubBuilder{site: &builder.Site{}}
	p := &stubPublisher{results: results}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{})
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.False(t, report.Failed())
	require.Len(t, report.Destinations, 2)
	require.False(t, report.Destinations[0].OK)
	require.True(t, report.Destinations[1].OK)
	require.Equal(t, StageErrorWarning, report.StageErrorKinds[StagePublish])
	require.Equal(t, State(StateDone), report.CurrentState())
}

func TestRun_PartialDestinationCopyIsWarning(t *testing.T) {
	results := okResults()
	results[1].Failed = 1
	c := &stubCollector{bundle: &collector.Bundle{Files: 1}}
	b := &stubBuilder{site: &builder.Site{}}
	p := &stubPublisher{results: results}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{})
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.False(t, report.Destinations[1].OK)
}

func TestRun_PublisherErrorWithoutCancellationIsWarning(t *testing.T) {
	// A publisher implementation may fail outright (transport error) with
	// the context still live; that must read as a warning, not canceled.
	c := &stubCollector{bundle: &collector.Bundle{Files: 1}}
	b := &stubBuilder{site: &builder.Site{}}
	p := &stubPublisher{err: errors.New("share mount lost")}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{})
	require.Equal(t, OutcomeWarning, report.Outcome)
	require.False(t, report.Failed())
	require.Equal(t, StageErrorWarning, report.StageErrorKinds[StagePublish])
	require.Equal(t, StateDone, report.CurrentState())
}

func TestRun_SkipPublish(t *testing.T) {
	c := &stubCollector{bundle: &collector.Bundle{Files: 1}}
	b := &stubBuilder{site: &builder.Site{}}
	p := &stubPublisher{results: okResults()}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{SkipPublish: true})
	require.Equal(t, OutcomeSuccess, report.Outcome)
	require.Zero(t, p.calls)
	require.Equal(t, []State{StateIdle, StateCollecting, StateBuilding, StateDone}, report.Transitions)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &stubCollector{bundle: &collector.Bundle{}}
	b := &stubBuilder{site: &builder.Site{}}
	p := &stubPublisher{}

	report := newTestPipeline(c, b, p).Run(ctx, Options{})
	require.Equal(t, OutcomeCanceled, report.Outcome)
	require.True(t, report.Failed())
	require.Zero(t, b.calls)
	require.Zero(t, p.calls)
}

func TestRun_GeneratorOutputTailCarriedIntoReport(t *testing.T) {
	c := &stubCollector{bundle: &collector.Bundle{}}
	b := &stubBuilder{site: &builder.Site{OutputTail: "wrote 12 pages"}}
	p := &stubPublisher{results: okResults()}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{})
	require.Equal(t, "wrote 12 pages", report.GeneratorOutput)
}

func TestRun_StageDurationsRecorded(t *testing.T) {
	c := &stubCollector{bundle: &collector.Bundle{}}
	b := &stubBuilder{site: &builder.Site{}}
	p := &stubPublisher{results: okResults()}

	report := newTestPipeline(c, b, p).Run(context.Background(), Options{})
	require.Contains(t, report.StageDurations, StageCollect)
	require.Contains(t, report.StageDurations, StageBuild)
	require.Contains(t, report.StageDurations, StagePublish)
	require.NotEmpty(t, report.RunID)
}
