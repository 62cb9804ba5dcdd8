// Package collector stages exported data files from the configured source
// location into the local staging directory.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/exports"
	"git.home.luguber.info/inful/reqsite/internal/fscopy"
	"git.home.luguber.info/inful/reqsite/internal/logfields"
)

// Bundle describes one staged export bundle.
type Bundle struct {
	StagingPath string
	Files       int
	Failed      int
	CollectedAt time.Time
}

// Collector copies the export source into the staging directory. Staging is
// a mirror: stale files from earlier runs are retained, never pruned.
type Collector struct {
	source      config.SourceConfig
	stagingPath string
	checkoutDir string // workspace dir for git checkouts
}

// New creates a collector for the given source and staging location.
func New(source config.SourceConfig, stagingPath, checkoutDir string) *Collector {
	return &Collector{source: source, stagingPath: stagingPath, checkoutDir: checkoutDir}
}

// Collect stages all source files. Any returned error is non-fatal to the
// pipeline: the orchestrator downgrades it to a collection warning.
func (c *Collector) Collect(ctx context.Context) (*Bundle, error) {
	srcPath := c.source.Path
	if c.source.Git != nil {
		checkout, err := c.syncGitSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("sync git source: %w", err)
		}
		srcPath = checkout
	}

	slog.Info("Collecting exports", logfields.Source(srcPath), logfields.Path(c.stagingPath))

	report, err := fscopy.Mirror(ctx, srcPath, c.stagingPath)
	bundle := &Bundle{
		StagingPath: c.stagingPath,
		Files:       report.Copied,
		Failed:      len(report.Failures),
		CollectedAt: time.Now(),
	}
	if err != nil {
		return bundle, err
	}
	for _, f := range report.Failures {
		slog.Warn("Export file copy failed", logfields.Path(f.RelPath), logfields.Error(f.Err))
	}
	if len(report.Failures) > 0 {
		return bundle, fmt.Errorf("%d of %d export files failed to copy", len(report.Failures), report.Copied+len(report.Failures))
	}

	slog.Info("Exports staged", logfields.Files(bundle.Files))
	c.inspectStaging()
	return bundle, nil
}

// inspectStaging logs what the staged export set looks like. Advisory only:
// a missing hierarchy or module file is the generator's problem to reject.
func (c *Collector) inspectStaging() {
	set, err := exports.Discover(c.stagingPath)
	if err != nil {
		slog.Debug("Export discovery failed", logfields.Error(err))
		return
	}
	if set.HierarchyPath == "" {
		slog.Warn("No hierarchy file in staging", logfields.Path(c.stagingPath))
		return
	}
	slog.Info("Export set discovered",
		slog.Int("modules", len(set.Modules)),
		slog.Int("requirement_files", len(set.RequirementFiles)),
		slog.Int("test_files", len(set.TestFiles)))
	for _, m := range set.MissingModuleFiles() {
		slog.Warn("Module has no export files", slog.String("module", m))
	}
}
