package recovery

import (
	"context"
	"os"
	"testing"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/stretchr/testify/require"
)

func newTestLayout(t *testing.T) *storage.Layout {
	t.Helper()
	dir, err := os.MkdirTemp("", "promptvid-recovery-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	layout, err := storage.NewLayout(dir, "http://localhost:8080")
	require.NoError(t, err)
	return layout
}

func TestPlanGenerating_ResumesAfterLargestCompletedPrefix(t *testing.T) {
	run := &models.VideoRun{Status: models.RunStatusGenerating, SegmentCount: 4}
	segments := []*models.Segment{
		{SegmentNumber: 1, Status: models.SegmentStatusCompleted},
		{SegmentNumber: 2, Status: models.SegmentStatusCompleted},
		{SegmentNumber: 3, Status: models.SegmentStatusFailed},
		{SegmentNumber: 4, Status: models.SegmentStatusPending},
	}

	decision, err := Plan(context.Background(), run, segments, newTestLayout(t))
	require.NoError(t, err)
	require.True(t, decision.Resumable)
	require.Equal(t, models.RunStatusGenerating, decision.Status)
	require.Equal(t, 3, decision.CurrentSegment)
	require.True(t, decision.ClearError)
}

func TestPlanGenerating_NoCompletedSegmentsResumesAtOne(t *testing.T) {
	run := &models.VideoRun{Status: models.RunStatusGenerating, SegmentCount: 2}
	segments := []*models.Segment{
		{SegmentNumber: 1, Status: models.SegmentStatusPending},
		{SegmentNumber: 2, Status: models.SegmentStatusPending},
	}

	decision, err := Plan(context.Background(), run, segments, newTestLayout(t))
	require.NoError(t, err)
	require.True(t, decision.Resumable)
	require.Equal(t, 1, decision.CurrentSegment)
}

func TestPlanStitching_AllSegmentsOnDiskResumesAtStitching(t *testing.T) {
	layout := newTestLayout(t)
	run := &models.VideoRun{UserID: "user-1", Status: models.RunStatusStitching, SegmentCount: 2}
	run.ID = models.NewULID()

	require.NoError(t, layout.CreateRunTree(context.Background(), run.UserID, run.ID))
	for _, p := range []string{
		layout.SegmentPath(run.UserID, run.ID, 1),
		layout.SegmentPath(run.UserID, run.ID, 2),
	} {
		abs, err := layout.AbsPath(p)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(abs, []byte("fake"), 0o644))
	}

	decision, err := Plan(context.Background(), run, nil, layout)
	require.NoError(t, err)
	require.True(t, decision.Resumable)
	require.Equal(t, models.RunStatusStitching, decision.Status)
}

func TestPlanStitching_MissingSegmentsFallsBackToGenerating(t *testing.T) {
	layout := newTestLayout(t)
	run := &models.VideoRun{UserID: "user-1", Status: models.RunStatusStitching, SegmentCount: 2}
	run.ID = models.NewULID()
	require.NoError(t, layout.CreateRunTree(context.Background(), run.UserID, run.ID))

	segments := []*models.Segment{
		{SegmentNumber: 1, Status: models.SegmentStatusCompleted},
		{SegmentNumber: 2, Status: models.SegmentStatusPending},
	}

	decision, err := Plan(context.Background(), run, segments, layout)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusGenerating, decision.Status)
	require.Equal(t, 2, decision.CurrentSegment)
}

func TestPlanAudio_StitchedFileExistsResumesAtAudio(t *testing.T) {
	layout := newTestLayout(t)
	run := &models.VideoRun{UserID: "user-1", Status: models.RunStatusMerging, SegmentCount: 2}
	run.ID = models.NewULID()
	require.NoError(t, layout.CreateRunTree(context.Background(), run.UserID, run.ID))

	abs, err := layout.AbsPath(layout.StitchedPath(run.UserID, run.ID))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(abs, []byte("fake"), 0o644))

	decision, err := Plan(context.Background(), run, nil, layout)
	require.NoError(t, err)
	require.True(t, decision.Resumable)
	require.Equal(t, models.RunStatusAudio, decision.Status)
}

func TestPlanAudio_NoStitchedFileFallsBackToStitchingThenGenerating(t *testing.T) {
	layout := newTestLayout(t)
	run := &models.VideoRun{UserID: "user-1", Status: models.RunStatusTranscoding, SegmentCount: 1}
	run.ID = models.NewULID()
	require.NoError(t, layout.CreateRunTree(context.Background(), run.UserID, run.ID))

	decision, err := Plan(context.Background(), run, nil, layout)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusGenerating, decision.Status)
	require.Equal(t, 1, decision.CurrentSegment)
}

func TestPlanTerminalAndPendingStatesAreNotRecoverable(t *testing.T) {
	layout := newTestLayout(t)
	for _, status := range []models.RunStatus{
		models.RunStatusCompleted,
		models.RunStatusFailed,
		models.RunStatusPending,
		models.RunStatusDecomposing,
	} {
		run := &models.VideoRun{Status: status}
		decision, err := Plan(context.Background(), run, nil, layout)
		require.NoError(t, err)
		require.False(t, decision.Resumable, "status %s should not be resumable", status)
	}
}
