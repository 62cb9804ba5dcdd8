// Package notify publishes run-completed events to NATS JetStream so
// downstream consumers (dashboards, chat bots) can react to pipeline runs.
// Notification problems never affect the run outcome.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/reqsite/internal/config"
	"git.home.luguber.info/inful/reqsite/internal/pipeline"
)

// RunEvent is the JSON payload published for each finished run.
type RunEvent struct {
	RunID          string    `json:"run_id"`
	Outcome        string    `json:"outcome"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	FilesStaged    int       `json:"files_staged"`
	FilesPublished int       `json:"files_published"`
	Destinations   int       `json:"destinations"`
	Warnings       int       `json:"warnings"`
	Errors         int       `json:"errors"`
	Timestamp      time.Time `json:"timestamp"`
}

// Notifier holds the NATS connection and JetStream context.
type Notifier struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// New connects to NATS and creates a JetStream context. Callers should treat
// a connect error as a warning, not a run failure.
func New(cfg config.NotifyConfig) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("notifications are disabled")
	}

	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	slog.Info("NATS notifier initialized", "url", cfg.NATSURL, "subject", cfg.Subject)

	return &Notifier{conn: conn, js: js, subject: cfg.Subject}, nil
}

// PublishRun publishes the run-completed event for a finished report.
func (n *Notifier) PublishRun(ctx context.Context, report *pipeline.RunReport) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(eventFromReport(report))
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	if _, err := n.js.Publish(ctx, n.subject, data); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}

	slog.Debug("Published run event", "run_id", report.RunID, "outcome", report.Outcome)
	return nil
}

// Close closes the NATS connection.
func (n *Notifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}

func eventFromReport(report *pipeline.RunReport) RunEvent {
	return RunEvent{
		RunID:          report.RunID,
		Outcome:        string(report.Outcome),
		Start:          report.Start,
		End:            report.End,
		FilesStaged:    report.FilesStaged,
		FilesPublished: report.FilesPublished,
		Destinations:   len(report.Destinations),
		Warnings:       len(report.Warnings),
		Errors:         len(report.Errors),
		Timestamp:      time.Now(),
	}
}
