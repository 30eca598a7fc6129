// Package transcode implements the transcoding pipeline stage: it produces
// the 480p delivery file from the already-finalized 720p deliverable and
// marks the run completed.
package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/pipeline/core"
	"github.com/jmylchreest/promptvid/internal/pipeline/shared"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/jmylchreest/promptvid/internal/toolchain"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "transcoding"
	// StageName is the human-readable name for this stage.
	StageName = "Transcoding deliverables"

	width480  = 854
	height480 = 480
)

// Stage transcodes the final 720p deliverable down to 480p and marks the
// run completed.
type Stage struct {
	shared.BaseStage
	runRepo   repository.VideoRunRepository
	layout    *storage.Layout
	toolchain *toolchain.Toolchain
	logger    *slog.Logger
}

// New creates a new transcoding stage.
func New(runRepo repository.VideoRunRepository, layout *storage.Layout, tc *toolchain.Toolchain) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		runRepo:   runRepo,
		layout:    layout,
		toolchain: tc,
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.VideoRunRepo, deps.Layout, deps.Toolchain)
		if deps.Logger != nil {
			s.logger = deps.Logger.With("stage", StageID)
		}
		return s
	}
}

func (s *Stage) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg, args...)
}

// Execute transcodes final_720p.mp4 to final_480p.mp4 and marks the run
// completed.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()
	run := state.Run

	final720, err := s.layout.AbsPath(s.layout.Final720Path(run.UserID, run.ID))
	if err != nil {
		return result, fmt.Errorf("resolving final 720p path: %w", err)
	}
	if _, statErr := os.Stat(final720); statErr != nil {
		return result, fmt.Errorf("final 720p deliverable missing: %w", statErr)
	}

	final480, err := s.layout.AbsPath(s.layout.Final480Path(run.UserID, run.ID))
	if err != nil {
		return result, fmt.Errorf("resolving final 480p path: %w", err)
	}

	shared.EnterPhase(run, shared.PhaseTranscoding)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting transcoding phase entry: %w", err)
	}

	if err := s.toolchain.Transcode(ctx, final720, final480, width480, height480); err != nil {
		return result, fmt.Errorf("transcoding to 480p: %w", err)
	}

	size480, _ := fileSize(final480)
	durationSecs := 0.0
	if run.ActualDuration != nil {
		durationSecs = *run.ActualDuration
	}

	if run.Files == nil {
		run.Files = models.VideoFiles{}
	}
	run.Files[models.FileKeyFinal480] = models.VideoFile{Path: final480, Size: size480, Format: "mp4", DurationSeconds: durationSecs}

	run.Status = models.RunStatusCompleted
	run.Progress = 100
	completedAt := models.Now()
	run.CompletedAt = &completedAt

	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting completed run: %w", err)
	}

	result.RecordsProcessed = 1
	result.Message = "final 480p deliverable transcoded, run completed"
	result.Artifacts = append(result.Artifacts,
		core.NewArtifact(core.ArtifactTypeFinal, core.ProcessingStagePublished, StageID).WithFilePath(final480).WithFileSize(size480),
	)

	s.log(ctx, slog.LevelInfo, "run completed",
		slog.String("run_id", run.ID.String()),
		slog.Float64("duration", durationSecs))

	return result, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
