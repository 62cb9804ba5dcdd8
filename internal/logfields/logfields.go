package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID       = "run_id"
	KeyStage       = "stage"
	KeyState       = "state"
	KeyPath        = "path"
	KeySource      = "source"
	KeyDestination = "destination"
	KeyFiles       = "files"
	KeyFailed      = "failed"
	KeyCommand     = "command"
	KeyOutcome     = "outcome"
	KeyDurationMS  = "duration_ms"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr         { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr       { return slog.String(KeyStage, name) }
func State(s string) slog.Attr          { return slog.String(KeyState, s) }
func Path(p string) slog.Attr           { return slog.String(KeyPath, p) }
func Source(s string) slog.Attr         { return slog.String(KeySource, s) }
func Destination(name string) slog.Attr { return slog.String(KeyDestination, name) }
func Files(n int) slog.Attr             { return slog.Int(KeyFiles, n) }
func Failed(n int) slog.Attr            { return slog.Int(KeyFailed, n) }
func Command(c string) slog.Attr        { return slog.String(KeyCommand, c) }
func Outcome(o string) slog.Attr        { return slog.String(KeyOutcome, o) }
func DurationMS(ms float64) slog.Attr   { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
