// Package publisher copies the generated site bundle to the configured
// destination targets.
package publisher

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/fscopy"
	"git.home.luguber.info/inful/reqsite/internal/logfields"
)

// DestinationResult records the outcome of one destination copy. Copies are
// independent: a failed destination never stops the remaining ones.
type DestinationResult struct {
	Destination config.Destination
	Copied      int
	Failed      int
	Err         error
}

// OK reports whether the destination received a complete copy.
func (r DestinationResult) OK() bool { return r.Err == nil && r.Failed == 0 }

// Publisher mirrors the output tree to each destination in order.
type Publisher struct {
	destinations []config.Destination
}

// New creates a publisher for the given destination targets.
func New(destinations []config.Destination) *Publisher {
	return &Publisher{destinations: destinations}
}

// Publish copies outputPath to every destination. Every destination is
// attempted regardless of earlier failures; per-destination problems are
// reported in the results, not returned as an error. Only context
// cancellation aborts the remaining destinations.
func (p *Publisher) Publish(ctx context.Context, outputPath string) ([]DestinationResult, error) {
	results := make([]DestinationResult, 0, len(p.destinations))
	for _, dest := range p.destinations {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		slog.Info("Publishing site bundle",
			logfields.Destination(dest.DisplayName()),
			logfields.Path(dest.Path))

		report, err := fscopy.Mirror(ctx, outputPath, dest.Path)
		result := DestinationResult{
			Destination: dest,
			Copied:      report.Copied,
			Failed:      len(report.Failures),
			Err:         err,
		}
		results = append(results, result)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			slog.Warn("Destination copy failed",
				logfields.Destination(dest.DisplayName()),
				logfields.Error(err))
		case result.Failed > 0:
			slog.Warn("Destination copy incomplete",
				logfields.Destination(dest.DisplayName()),
				logfields.Files(result.Copied),
				logfields.Failed(result.Failed))
		default:
			slog.Info("Destination published",
				logfields.Destination(dest.DisplayName()),
				logfields.Files(result.Copied))
		}
	}
	return results, nil
}
