// Package merge implements the merging pipeline stage: it combines the
// stitched silent video with the synthesized narration track into the
// final 720p deliverable, generates its preview thumbnail, and probes it
// for the run's technical metadata.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/pipeline/core"
	"github.com/jmylchreest/promptvid/internal/pipeline/shared"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/audio"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/stitch"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/jmylchreest/promptvid/internal/toolchain"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "merging"
	// StageName is the human-readable name for this stage.
	StageName = "Merging audio and video"

	// MetadataKeyFinal720Path is the key under which the final 720p
	// deliverable's absolute path is stashed in State.Metadata.
	MetadataKeyFinal720Path = "final_720_path"

	thumbnailOffsetSeconds = 2.0
)

// Stage merges audio and video into the final 720p deliverable.
type Stage struct {
	shared.BaseStage
	runRepo   repository.VideoRunRepository
	layout    *storage.Layout
	toolchain *toolchain.Toolchain
	logger    *slog.Logger
}

// New creates a new merging stage.
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

// Execute merges the stitched video and adjusted narration track into
// final_720p.mp4, extracts its thumbnail, and records the run's probed
// technical metadata.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()
	run := state.Run

	shared.EnterPhase(run, shared.PhaseMerging)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting merging phase entry: %w", err)
	}

	stitchedVal, ok := state.GetMetadata(stitch.MetadataKeyStitchedPath)
	stitchedPath, _ := stitchedVal.(string)
	if !ok || stitchedPath == "" {
		return result, fmt.Errorf("no stitched video available from stitching stage")
	}

	audioVal, ok := state.GetMetadata(audio.MetadataKeyAudioPath)
	audioPath, _ := audioVal.(string)
	if !ok || audioPath == "" {
		return result, fmt.Errorf("no narration track available from audio stage")
	}

	final720, err := s.layout.AbsPath(s.layout.Final720Path(run.UserID, run.ID))
	if err != nil {
		return result, fmt.Errorf("resolving final 720p path: %w", err)
	}
	thumbnailPath, err := s.layout.AbsPath(s.layout.ThumbnailPath(run.UserID, run.ID))
	if err != nil {
		return result, fmt.Errorf("resolving thumbnail path: %w", err)
	}

	if err := s.toolchain.MergeAV(ctx, stitchedPath, audioPath, final720, true); err != nil {
		return result, fmt.Errorf("merging audio and video: %w", err)
	}
	if err := s.toolchain.GenerateThumbnail(ctx, final720, thumbnailPath, thumbnailOffsetSeconds); err != nil {
		s.log(ctx, slog.LevelWarn, "failed to generate thumbnail", slog.String("error", err.Error()))
	}

	probe, err := s.toolchain.Probe(ctx, final720)
	if err != nil {
		return result, fmt.Errorf("probing final 720p deliverable: %w", err)
	}

	merged, err := s.toolchain.VerifyMerged(ctx, final720)
	if err != nil {
		return result, fmt.Errorf("verifying merged deliverable: %w", err)
	}
	if !merged.HasVideo || !merged.HasAudio {
		return result, fmt.Errorf("merged deliverable missing expected streams (video=%v audio=%v)", merged.HasVideo, merged.HasAudio)
	}

	if validation, err := s.toolchain.Validate(ctx, final720); err != nil {
		s.log(ctx, slog.LevelWarn, "failed to validate final 720p deliverable", slog.String("error", err.Error()))
	} else {
		for _, w := range validation.Warnings {
			s.log(ctx, slog.LevelWarn, "final 720p deliverable warning", slog.String("warning", w))
		}
		if !validation.IsValid {
			return result, fmt.Errorf("final 720p deliverable failed validation: %s", strings.Join(validation.Errors, "; "))
		}
	}

	size720, _ := fileSize(final720)
	sizeThumb, _ := fileSize(thumbnailPath)

	run.Files = models.VideoFiles{
		models.FileKeyFinal720: {Path: final720, Size: size720, Format: "mp4", DurationSeconds: probe.Duration},
	}
	if sizeThumb > 0 {
		run.Files[models.FileKeyThumbnail] = models.VideoFile{Path: thumbnailPath, Size: sizeThumb, Format: "jpg"}
	}
	run.Metadata = models.VideoMetadata{
		Resolution: fmt.Sprintf("%dx%d", probe.Width, probe.Height),
		FPS:        probe.FPS,
		Codec:      probe.Codec,
	}
	duration := probe.Duration
	run.ActualDuration = &duration

	shared.FinishPhase(run, shared.PhaseMerging)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting run after merging: %w", err)
	}

	state.SetMetadata(MetadataKeyFinal720Path, final720)

	result.RecordsProcessed = 1
	result.Message = fmt.Sprintf("merged final 720p deliverable (%.1fs)", probe.Duration)
	result.Artifacts = append(result.Artifacts, core.NewArtifact(core.ArtifactTypeMerged, core.ProcessingStageGenerated, StageID).WithFilePath(final720).WithFileSize(size720))
	if sizeThumb > 0 {
		result.Artifacts = append(result.Artifacts, core.NewArtifact(core.ArtifactTypeThumbnail, core.ProcessingStageGenerated, StageID).WithFilePath(thumbnailPath).WithFileSize(sizeThumb))
	}

	s.log(ctx, slog.LevelInfo, "final 720p deliverable merged",
		slog.String("run_id", run.ID.String()),
		slog.Float64("duration", probe.Duration))

	return result, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
