package progress_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/pipeline/core"
	"github.com/jmylchreest/promptvid/internal/service/progress"
)

// mockStage implements core.Stage for testing
type mockStage struct {
	id   string
	name string
}

func (s *mockStage) ID() string   { return s.id }
func (s *mockStage) Name() string { return s.name }
func (s *mockStage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	return &core.StageResult{}, nil
}
func (s *mockStage) Cleanup(ctx context.Context) error { return nil }

func newTestProgressService() *progress.Service {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return progress.NewService(logger)
}

func TestOperationManager_ReportProgress(t *testing.T) {
	t.Run("updates stage progress", func(t *testing.T) {
		svc := newTestProgressService()
		ownerID := models.NewULID()

		stages := []core.Stage{
			&mockStage{id: "decompose", name: "Decompose"},
			&mockStage{id: "generate", name: "Generate"},
			&mockStage{id: "transcode", name: "Transcode"},
		}

		stageInfos := progress.CreateStagesFromPipeline(stages)
		mgr, err := svc.StartOperation(progress.OpPipeline, ownerID, "video_run", "run", stageInfos)
		require.NoError(t, err)

		// Use OperationManager directly as ProgressReporter
		var reporter core.ProgressReporter = mgr

		// Report progress on the "decompose" stage
		reporter.ReportProgress(context.Background(), "decompose", 0.5, "Halfway")

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		decomposeStage := op.Stages[0]
		assert.Equal(t, 0.5, decomposeStage.Progress)
		assert.Equal(t, "Halfway", decomposeStage.Message)
	})

	t.Run("handles unknown stage IDs gracefully", func(t *testing.T) {
		svc := newTestProgressService()
		ownerID := models.NewULID()

		stages := []core.Stage{
			&mockStage{id: "decompose", name: "Decompose"},
		}

		stageInfos := progress.CreateStagesFromPipeline(stages)
		mgr, err := svc.StartOperation(progress.OpPipeline, ownerID, "video_run", "run", stageInfos)
		require.NoError(t, err)

		// Report progress on an unknown stage - should not panic
		mgr.ReportProgress(context.Background(), "unknown", 0.5, "Test")

		// Operation should still be accessible
		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.NotNil(t, op)
	})
}

func TestOperationManager_ReportItemProgress(t *testing.T) {
	t.Run("calculates progress from item counts", func(t *testing.T) {
		svc := newTestProgressService()
		ownerID := models.NewULID()

		stages := []core.Stage{
			&mockStage{id: "generate", name: "Generate Segments"},
		}

		stageInfos := progress.CreateStagesFromPipeline(stages)
		mgr, err := svc.StartOperation(progress.OpPipeline, ownerID, "video_run", "run", stageInfos)
		require.NoError(t, err)

		// Report item progress: 25 of 100
		mgr.ReportItemProgress(context.Background(), "generate", 25, 100, "segment")

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		generateStage := op.Stages[0]
		assert.InDelta(t, 0.25, generateStage.Progress, 0.01)
		assert.Equal(t, 25, generateStage.Current)
		assert.Equal(t, 100, generateStage.Total)
	})

	t.Run("handles zero total gracefully", func(t *testing.T) {
		svc := newTestProgressService()
		ownerID := models.NewULID()

		stages := []core.Stage{
			&mockStage{id: "generate", name: "Generate Segments"},
		}

		stageInfos := progress.CreateStagesFromPipeline(stages)
		mgr, err := svc.StartOperation(progress.OpPipeline, ownerID, "video_run", "run", stageInfos)
		require.NoError(t, err)

		// Should not panic with zero total
		mgr.ReportItemProgress(context.Background(), "generate", 0, 0, "segment")

		// Operation should still be accessible and progress should be 0
		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.NotNil(t, op)
	})
}

func TestCreateStagesFromPipeline(t *testing.T) {
	t.Run("creates stage infos with equal weights", func(t *testing.T) {
		stages := []core.Stage{
			&mockStage{id: "a", name: "Stage A"},
			&mockStage{id: "b", name: "Stage B"},
			&mockStage{id: "c", name: "Stage C"},
			&mockStage{id: "d", name: "Stage D"},
		}

		infos := progress.CreateStagesFromPipeline(stages)

		assert.Len(t, infos, 4)
		for i, info := range infos {
			assert.Equal(t, stages[i].ID(), info.ID)
			assert.Equal(t, stages[i].Name(), info.Name)
			assert.InDelta(t, 0.25, info.Weight, 0.001)
		}
	})
}

func TestStartPipelineOperation(t *testing.T) {
	t.Run("creates operation with pipeline type for video_run", func(t *testing.T) {
		svc := newTestProgressService()
		ownerID := models.NewULID()

		stages := []core.Stage{
			&mockStage{id: "decompose", name: "Decompose"},
		}

		mgr, err := progress.StartPipelineOperation(svc, "video_run", ownerID, "a derelict space station drifting past a ringed planet", stages)
		require.NoError(t, err)
		require.NotNil(t, mgr)

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.Equal(t, progress.OpPipeline, op.OperationType)
		assert.Equal(t, "a derelict space station drifting past a ringed planet", op.OwnerName)
	})

	t.Run("creates operation with maintenance type for job", func(t *testing.T) {
		svc := newTestProgressService()
		ownerID := models.NewULID()

		stages := []core.Stage{
			&mockStage{id: "sweep", name: "Sweep"},
		}

		mgr, err := progress.StartPipelineOperation(svc, "job", ownerID, "lock sweep", stages)
		require.NoError(t, err)
		require.NotNil(t, mgr)

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.Equal(t, progress.OpMaintenance, op.OperationType)
	})

	t.Run("falls back to pipeline type for unknown owner", func(t *testing.T) {
		svc := newTestProgressService()
		ownerID := models.NewULID()

		stages := []core.Stage{
			&mockStage{id: "step", name: "Step"},
		}

		mgr, err := progress.StartPipelineOperation(svc, "unknown", ownerID, "owner", stages)
		require.NoError(t, err)
		require.NotNil(t, mgr)

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.Equal(t, progress.OpPipeline, op.OperationType)
	})

	t.Run("returns error for duplicate operation", func(t *testing.T) {
		svc := newTestProgressService()
		ownerID := models.NewULID()

		stages := []core.Stage{
			&mockStage{id: "decompose", name: "Decompose"},
		}

		// First operation succeeds
		mgr1, err := progress.StartPipelineOperation(svc, "video_run", ownerID, "run", stages)
		require.NoError(t, err)
		require.NotNil(t, mgr1)

		// Second operation with same owner should fail
		mgr2, err := progress.StartPipelineOperation(svc, "video_run", ownerID, "run", stages)
		assert.Error(t, err)
		assert.Nil(t, mgr2)
	})

	t.Run("OperationManager can be used as ProgressReporter", func(t *testing.T) {
		svc := newTestProgressService()
		ownerID := models.NewULID()

		stages := []core.Stage{
			&mockStage{id: "decompose", name: "Decompose"},
		}

		mgr, err := progress.StartPipelineOperation(svc, "video_run", ownerID, "run", stages)
		require.NoError(t, err)

		// The manager should be usable as a core.ProgressReporter
		var reporter core.ProgressReporter = mgr
		reporter.ReportProgress(context.Background(), "decompose", 0.5, "Testing")

		op, err := svc.GetOperation(mgr.OperationID())
		require.NoError(t, err)
		assert.Equal(t, 0.5, op.Stages[0].Progress)
	})
}
