// Package fscopy implements the mirror copy primitive shared by the
// collector and publisher: recursive overwrite-copy by relative path,
// creating missing directories, never deleting files absent from the source.
package fscopy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/reqsite/internal/logfields"
)

// ErrSourceUnavailable indicates the source root does not exist or cannot be read.
var ErrSourceUnavailable = errors.New("source unavailable")

// Failure records a single file that could not be copied.
type Failure struct {
	RelPath string
	Err     error
}

// Report summarizes one Mirror invocation. Failures are per-file and
// non-fatal: the walk continues past them.
type Report struct {
	Copied   int
	Failures []Failure
}

// Partial reports whether some files copied and some failed.
func (r Report) Partial() bool { return r.Copied > 0 && len(r.Failures) > 0 }

// Mirror copies the tree rooted at src into dst. Existing destination files
// are overwritten; destination files with no counterpart under src are left
// untouched. A missing src root returns ErrSourceUnavailable; per-file copy
// errors are accumulated in the report instead of aborting the walk.
func Mirror(ctx context.Context, src, dst string) (Report, error) {
	var report Report

	info, err := os.Stat(src)
	if err != nil {
		return report, fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src, err)
	}
	if !info.IsDir() {
		return report, fmt.Errorf("%w: %s is not a directory", ErrSourceUnavailable, src)
	}

	if err := os.MkdirAll(dst, 0o750); err != nil {
		return report, fmt.Errorf("create destination root: %w", err)
	}

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		if err != nil {
			// Unreadable entry: record and keep walking siblings.
			report.Failures = append(report.Failures, Failure{RelPath: rel, Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			if mkErr := os.MkdirAll(target, 0o750); mkErr != nil {
				report.Failures = append(report.Failures, Failure{RelPath: rel, Err: mkErr})
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks and specials are not part of export bundles; skip quietly.
			slog.Debug("Skipping non-regular file", logfields.Path(rel))
			return nil
		}
		if cpErr := copyFile(path, target); cpErr != nil {
			report.Failures = append(report.Failures, Failure{RelPath: rel, Err: cpErr})
			return nil
		}
		report.Copied++
		return nil
	})
	if walkErr != nil {
		return report, walkErr
	}
	return report, nil
}

// copyFile copies one regular file, overwriting the destination.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}
