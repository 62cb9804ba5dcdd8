package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunOutcome is the typed enumeration of final run result states.
type RunOutcome string

const (
	OutcomeSuccess  RunOutcome = "success"
	OutcomeWarning  RunOutcome = "warning"
	OutcomeFailed   RunOutcome = "failed"
	OutcomeCanceled RunOutcome = "canceled"
)

// DestinationStatus summarizes one destination copy for the report.
type DestinationStatus struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Copied int    `json:"copied"`
	Failed int    `json:"failed"`
	Error  string `json:"error,omitempty"`
	OK     bool   `json:"ok"`
}

// RunReport captures high-level metrics about a pipeline run.
type RunReport struct {
	SchemaVersion   int
	RunID           string
	Start           time.Time
	End             time.Time
	Transitions     []State // state machine path, starting at idle
	StageDurations  map[StageName]time.Duration
	StageErrorKinds map[StageName]StageErrorKind
	StageCounts     map[StageName]StageCount
	Errors          []error // fatal errors causing run abortion (at most one today)
	Warnings        []error // non-fatal issues (collection/publish problems)
	FilesStaged     int
	FilesPublished  int
	Destinations    []DestinationStatus
	GeneratorOutput string // tail of the external generator's output
	Outcome         RunOutcome
}

func newRunReport(runID string) *RunReport {
	return &RunReport{
		SchemaVersion:   1,
		RunID:           runID,
		Start:           time.Now(),
		Transitions:     []State{StateIdle},
		StageDurations:  make(map[StageName]time.Duration),
		StageErrorKinds: make(map[StageName]StageErrorKind),
		StageCounts:     make(map[StageName]StageCount),
	}
}

// transition appends a state to the recorded path.
func (r *RunReport) transition(s State) { r.Transitions = append(r.Transitions, s) }

// CurrentState returns the most recently recorded state.
func (r *RunReport) CurrentState() State {
	if len(r.Transitions) == 0 {
		return StateIdle
	}
	return r.Transitions[len(r.Transitions)-1]
}

// recordStage classifies a stage result into counters and error slices.
func (r *RunReport) recordStage(stage StageName, err error) {
	sc := r.StageCounts[stage]
	if err == nil {
		sc.Success++
		r.StageCounts[stage] = sc
		return
	}
	var se *StageError
	if !errors.As(err, &se) {
		se = newFatalStageError(stage, err)
	}
	r.StageErrorKinds[stage] = se.Kind
	switch se.Kind {
	case StageErrorWarning:
		sc.Warning++
		r.Warnings = append(r.Warnings, se)
	case StageErrorCanceled:
		sc.Canceled++
		r.Errors = append(r.Errors, se)
	case StageErrorFatal:
		sc.Fatal++
		r.Errors = append(r.Errors, se)
	}
	r.StageCounts[stage] = sc
}

func (r *RunReport) finish() {
	r.End = time.Now()
	r.deriveOutcome()
}

// deriveOutcome sets the Outcome field based on recorded errors/warnings.
func (r *RunReport) deriveOutcome() {
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			var se *StageError
			if errors.As(e, &se) && se.Kind == StageErrorCanceled {
				r.Outcome = OutcomeCanceled
				return
			}
		}
		r.Outcome = OutcomeFailed
		return
	}
	if len(r.Warnings) > 0 {
		r.Outcome = OutcomeWarning
		return
	}
	r.Outcome = OutcomeSuccess
}

// Failed reports whether the run should exit non-zero. Warnings never change
// the exit code; only a fatal (or canceled) run does.
func (r *RunReport) Failed() bool {
	return r.Outcome == OutcomeFailed || r.Outcome == OutcomeCanceled
}

// Duration returns the total wall-clock run time.
func (r *RunReport) Duration() time.Duration { return r.End.Sub(r.Start) }

// Summary returns a human-readable single-line summary.
func (r *RunReport) Summary() string {
	return fmt.Sprintf("run=%s staged=%d published=%d destinations=%d duration=%s errors=%d warnings=%d outcome=%s",
		r.RunID, r.FilesStaged, r.FilesPublished, len(r.Destinations),
		r.Duration().Truncate(time.Millisecond), len(r.Errors), len(r.Warnings), r.Outcome)
}

// Persist writes the report atomically into the provided root directory.
// It writes two files:
//
//	run-report.json  (machine readable)
//	run-report.txt   (human summary)
//
// Best effort; errors are returned for caller logging but do not change the
// run outcome.
func (r *RunReport) Persist(root string) error {
	if r.End.IsZero() {
		r.finish()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return fmt.Errorf("ensure root for report: %w", err)
	}
	jb, err := json.MarshalIndent(r.sanitizedCopy(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	jsonPath := filepath.Join(root, "run-report.json")
	tmpJSON := jsonPath + ".tmp"
	if err := os.WriteFile(tmpJSON, jb, 0o644); err != nil {
		return fmt.Errorf("write temp report json: %w", err)
	}
	if err := os.Rename(tmpJSON, jsonPath); err != nil {
		return fmt.Errorf("atomic rename json: %w", err)
	}
	summaryPath := filepath.Join(root, "run-report.txt")
	tmpTxt := summaryPath + ".tmp"
	if err := os.WriteFile(tmpTxt, []byte(r.Summary()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write temp report summary: %w", err)
	}
	if err := os.Rename(tmpTxt, summaryPath); err != nil {
		return fmt.Errorf("atomic rename summary: %w", err)
	}
	return nil
}

// sanitizedCopy returns a copy with error fields converted to strings for
// JSON friendliness and typed map keys stringified.
func (r *RunReport) sanitizedCopy() *runReportSerializable {
	durations := make(map[string]time.Duration, len(r.StageDurations))
	for k, v := range r.StageDurations {
		durations[string(k)] = v
	}
	kinds := make(map[string]string, len(r.StageErrorKinds))
	for k, v := range r.StageErrorKinds {
		kinds[string(k)] = string(v)
	}
	counts := make(map[string]StageCount, len(r.StageCounts))
	for k, v := range r.StageCounts {
		counts[string(k)] = v
	}
	transitions := make([]string, len(r.Transitions))
	for i, s := range r.Transitions {
		transitions[i] = string(s)
	}

	s := &runReportSerializable{
		SchemaVersion:   r.SchemaVersion,
		RunID:           r.RunID,
		Start:           r.Start,
		End:             r.End,
		Transitions:     transitions,
		StageDurations:  durations,
		StageErrorKinds: kinds,
		StageCounts:     counts,
		Errors:          make([]string, len(r.Errors)),
		Warnings:        make([]string, len(r.Warnings)),
		FilesStaged:     r.FilesStaged,
		FilesPublished:  r.FilesPublished,
		Destinations:    r.Destinations,
		GeneratorOutput: r.GeneratorOutput,
		Outcome:         string(r.Outcome),
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	for i, w := range r.Warnings {
		s.Warnings[i] = w.Error()
	}
	return s
}

// runReportSerializable mirrors RunReport but with string errors for JSON output.
type runReportSerializable struct {
	SchemaVersion   int                      `json:"schema_version"`
	RunID           string                   `json:"run_id"`
	Start           time.Time                `json:"start"`
	End             time.Time                `json:"end"`
	Transitions     []string                 `json:"transitions"`
	StageDurations  map[string]time.Duration `json:"stage_durations"`
	StageErrorKinds map[string]string        `json:"stage_error_kinds"`
	StageCounts     map[string]StageCount    `json:"stage_counts"`
	Errors          []string                 `json:"errors"`
	Warnings        []string                 `json:"warnings"`
	FilesStaged     int                      `json:"files_staged"`
	FilesPublished  int                      `json:"files_published"`
	Destinations    []DestinationStatus      `json:"destinations"`
	GeneratorOutput string                   `json:"generator_output,omitempty"`
	Outcome         string                   `json:"outcome"`
}
