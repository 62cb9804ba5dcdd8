// Package builder invokes the external static-site generator that turns
// staged exports into an HTML bundle. The generator itself is a separate
// program; only its invocation contract lives here.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/logfields"
)

// ErrGeneratorFailed indicates the external generator exited non-zero or
// could not be started. This is the only fatal condition in the pipeline.
var ErrGeneratorFailed = errors.New("site generator failed")

// outputTailLimit bounds how much generator output is retained in the site
// record for reports.
const outputTailLimit = 4096

// Site describes the generated static HTML bundle.
type Site struct {
	OutputPath  string
	GeneratedAt time.Time
	Duration    time.Duration
	OutputTail  string
}

// Runner executes the external generator synchronously.
type Runner struct {
	cfg config.GeneratorConfig
}

// NewRunner creates a runner for the configured generator.
func NewRunner(cfg config.GeneratorConfig) *Runner {
	return &Runner{cfg: cfg}
}

// Args returns the generator command line for the given staging and output
// directories. The flag names follow the generator's own CLI.
func (r *Runner) Args(stagingPath, outputPath string) []string {
	args := []string{
		"--exports", stagingPath,
		"--out", outputPath,
		"--project-name", r.cfg.ProjectName,
	}
	if r.cfg.LogoPath != "" {
		args = append(args, "--logo", r.cfg.LogoPath)
	}
	return args
}

// Build runs the generator against the staged exports. A non-zero exit or
// spawn failure returns an error wrapping ErrGeneratorFailed; partial output
// in the output directory is left as-is.
func (r *Runner) Build(ctx context.Context, stagingPath, outputPath string) (*Site, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout.Std())
		defer cancel()
	}

	if err := os.MkdirAll(outputPath, 0o750); err != nil {
		return nil, fmt.Errorf("%w: create output directory: %v", ErrGeneratorFailed, err)
	}

	tail := &tailBuffer{limit: outputTailLimit}
	cmd := exec.CommandContext(ctx, r.cfg.Command, r.Args(stagingPath, outputPath)...)
	cmd.Stdout = io.MultiWriter(os.Stdout, tail)
	cmd.Stderr = io.MultiWriter(os.Stderr, tail)

	slog.Info("Running site generator",
		logfields.Command(r.cfg.Command),
		logfields.Path(outputPath),
		slog.String("project", r.cfg.ProjectName))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	site := &Site{
		OutputPath:  outputPath,
		GeneratedAt: start,
		Duration:    duration,
		OutputTail:  tail.String(),
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return site, fmt.Errorf("%w: %v", ErrGeneratorFailed, ctxErr)
		}
		return site, fmt.Errorf("%w: %v", ErrGeneratorFailed, err)
	}

	slog.Info("Site generated", logfields.Path(outputPath), logfields.DurationMS(float64(duration.Milliseconds())))
	return site, nil
}

// tailBuffer is an io.Writer that retains only the last limit bytes
// written, so a chatty generator cannot grow it without bound.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.limit {
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string { return strings.TrimSpace(string(t.buf)) }
