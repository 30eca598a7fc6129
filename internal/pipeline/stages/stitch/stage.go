// Package stitch implements the stitching pipeline stage: it crossfades the
// generated segments into a single silent 720p composite.
package stitch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/promptvid/internal/pipeline/core"
	"github.com/jmylchreest/promptvid/internal/pipeline/shared"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/generate"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/jmylchreest/promptvid/internal/toolchain"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "stitching"
	// StageName is the human-readable name for this stage.
	StageName = "Stitching segments"

	// MetadataKeyStitchedPath is the key under which the stitched video's
	// absolute path is stashed in State.Metadata.
	MetadataKeyStitchedPath = "stitched_path"
	// MetadataKeyStitchedDuration is the key under which the stitched
	// video's probed duration (seconds) is stashed.
	MetadataKeyStitchedDuration = "stitched_duration"
)

// Stage crossfades segments into a single composite video.
type Stage struct {
	shared.BaseStage
	runRepo      repository.VideoRunRepository
	layout       *storage.Layout
	toolchain    *toolchain.Toolchain
	fadeDuration float64
	logger       *slog.Logger
}

// New creates a new stitching stage.
func New(runRepo repository.VideoRunRepository, layout *storage.Layout, tc *toolchain.Toolchain, fadeDuration float64) *Stage {
	if fadeDuration <= 0 {
		fadeDuration = 0.5
	}
	return &Stage{
		BaseStage:    shared.NewBaseStage(StageID, StageName),
		runRepo:      runRepo,
		layout:       layout,
		toolchain:    tc,
		fadeDuration: fadeDuration,
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.VideoRunRepo, deps.Layout, deps.Toolchain, deps.Config.FadeDuration)
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

// Execute crossfades every generated segment into state.Run's stitched file.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()
	run := state.Run

	shared.EnterPhase(run, shared.PhaseStitching)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting stitching phase entry: %w", err)
	}

	segmentPaths, ok := state.GetMetadata(generate.MetadataKeySegmentPaths)
	paths, _ := segmentPaths.([]string)
	if !ok || len(paths) == 0 {
		return result, core.ErrNoSegments
	}

	durations := make([]float64, len(paths))
	for i, p := range paths {
		probe, err := s.toolchain.Probe(ctx, p)
		if err != nil {
			return result, fmt.Errorf("probing segment %d: %w", i+1, err)
		}
		durations[i] = probe.Duration
	}

	stitchedPath, err := s.layout.AbsPath(s.layout.StitchedPath(run.UserID, run.ID))
	if err != nil {
		return result, fmt.Errorf("resolving stitched path: %w", err)
	}

	if err := s.toolchain.StitchCrossfade(ctx, paths, stitchedPath, s.fadeDuration, durations); err != nil {
		return result, fmt.Errorf("stitching segments: %w", err)
	}

	probe, err := s.toolchain.Probe(ctx, stitchedPath)
	if err != nil {
		return result, fmt.Errorf("probing stitched video: %w", err)
	}

	state.SetMetadata(MetadataKeyStitchedPath, stitchedPath)
	state.SetMetadata(MetadataKeyStitchedDuration, probe.Duration)

	shared.FinishPhase(run, shared.PhaseStitching)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting stitching phase completion: %w", err)
	}

	result.RecordsProcessed = len(paths)
	result.Message = fmt.Sprintf("stitched %d segments (%.1fs)", len(paths), probe.Duration)
	result.Artifacts = append(result.Artifacts, core.NewArtifact(core.ArtifactTypeStitched, core.ProcessingStageGenerated, StageID).WithFilePath(stitchedPath))

	s.log(ctx, slog.LevelInfo, "segments stitched",
		slog.Int("segment_count", len(paths)),
		slog.Float64("duration", probe.Duration))

	return result, nil
}
