package pipeline

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReport_OutcomeDerivation(t *testing.T) {
	t.Run("clean run is success", func(t *testing.T) {
		r := newRunReport("r1")
		r.recordStage(StageCollect, nil)
		r.finish()
		require.Equal(t, OutcomeSuccess, r.Outcome)
		require.False(t, r.Failed())
	})

	t.Run("warning only", func(t *testing.T) {
		r := newRunReport("r2")
		r.recordStage(StageCollect, newWarnStageError(StageCollect, errors.New("source gone")))
		r.finish()
		require.Equal(t, OutcomeWarning, r.Outcome)
		require.False(t, r.Failed())
	})

	t.Run("fatal wins over warning", func(t *testing.T) {
		r := newRunReport("r3")
		r.recordStage(StageCollect, newWarnStageError(StageCollect, errors.New("partial")))
		r.recordStage(StageBuild, newFatalStageError(StageBuild, errors.New("generator exit 2")))
		r.finish()
		require.Equal(t, OutcomeFailed, r.Outcome)
		require.True(t, r.Failed())
	})

	t.Run("canceled wins over fatal", func(t *testing.T) {
		r := newRunReport("r4")
		r.recordStage(StageBuild, newCanceledStageError(StageBuild, errors.New("interrupted")))
		r.finish()
		require.Equal(t, OutcomeCanceled, r.Outcome)
		require.True(t, r.Failed())
	})
}

func TestReport_RecordStageCounts(t *testing.T) {
	r := newRunReport("r5")
	r.recordStage(StageCollect, nil)
	r.recordStage(StagePublish, newWarnStageError(StagePublish, errors.New("1 of 2 destinations failed")))

	require.Equal(t, 1, r.StageCounts[StageCollect].Success)
	require.Equal(t, 1, r.StageCounts[StagePublish].Warning)
	require.Equal(t, StageErrorWarning, r.StageErrorKinds[StagePublish])
	require.Len(t, r.Warnings, 1)
	require.Empty(t, r.Errors)
}

func TestReport_BareErrorTreatedAsFatal(t *testing.T) {
	r := newRunReport("r6")
	r.recordStage(StageBuild, errors.New("not a stage error"))
	r.finish()
	require.Equal(t, OutcomeFailed, r.Outcome)
	require.Equal(t, 1, r.StageCounts[StageBuild].Fatal)
}

func TestReport_Persist(t *testing.T) {
	dir := t.TempDir()

	r := newRunReport("r7")
	r.transition(StateCollecting)
	r.recordStage(StageCollect, newWarnStageError(StageCollect, errors.New("missing tests.csv")))
	r.FilesStaged = 7
	r.Destinations = append(r.Destinations, DestinationStatus{Name: "eng", Path: "/eng", Copied: 7, OK: true})
	r.FilesPublished = 7
	r.transition(StateDone)
	r.finish()

	require.NoError(t, r.Persist(dir))

	raw, err := os.ReadFile(filepath.Join(dir, "run-report.json"))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "r7", decoded["run_id"])
	require.Equal(t, "warning", decoded["outcome"])
	require.Equal(t, float64(7), decoded["files_staged"])
	require.Contains(t, decoded["warnings"], "warning stage collect: missing tests.csv")

	txt, err := os.ReadFile(filepath.Join(dir, "run-report.txt"))
	require.NoError(t, err)
	require.Contains(t, string(txt), "outcome=warning")
	require.Contains(t, string(txt), "run=r7")

	// No temp files may survive an atomic persist.
	require.NoFileExists(t, filepath.Join(dir, "run-report.json.tmp"))
	require.NoFileExists(t, filepath.Join(dir, "run-report.txt.tmp"))
}

func TestReport_SummaryMentionsCounts(t *testing.T) {
	r := newRunReport("r8")
	r.FilesStaged = 3
	r.FilesPublished = 6
	r.finish()
	s := r.Summary()
	require.Contains(t, s, "staged=3")
	require.Contains(t, s, "published=6")
	require.Contains(t, s, "outcome=success")
}
