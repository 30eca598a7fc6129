// Package decompose implements the decomposing pipeline stage: it turns a
// single text prompt into an ordered storyboard of scenes (and, if the
// caller didn't supply one, an enhanced prompt) via the configured
// StoryboardProvider.
package decompose

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/pipeline/core"
	"github.com/jmylchreest/promptvid/internal/pipeline/shared"
	"github.com/jmylchreest/promptvid/internal/provider"
	"github.com/jmylchreest/promptvid/internal/repository"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "decomposing"
	// StageName is the human-readable name for this stage.
	StageName = "Decomposing storyboard"
)

// Stage decomposes a prompt into scenes and creates their pending segments.
type Stage struct {
	shared.BaseStage
	storyboard provider.StoryboardProvider
	runRepo    repository.VideoRunRepository
	logger     *slog.Logger
}

// New creates a new decomposing stage.
func New(storyboard provider.StoryboardProvider, runRepo repository.VideoRunRepository) *Stage {
	return &Stage{
		BaseStage:  shared.NewBaseStage(StageID, StageName),
		storyboard: storyboard,
		runRepo:    runRepo,
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.Storyboard, deps.VideoRunRepo)
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

// Execute decomposes state.Run's prompt into scenes and persists them. If
// the caller already supplied scenes with the spec, the LLM decomposition
// is skipped entirely (§6). On a decomposition provider failure, a
// deterministic fallback storyboard is used instead of failing the run.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()
	run := state.Run

	shared.EnterPhase(run, shared.PhaseDecomposing)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting decomposing phase entry: %w", err)
	}

	existing, err := s.runRepo.GetScenesByRunID(ctx, run.ID)
	if err != nil {
		return result, fmt.Errorf("checking for supplied scenes: %w", err)
	}

	var scenes []*models.Scene
	if len(existing) > 0 {
		scenes = existing
		s.log(ctx, slog.LevelInfo, "using caller-supplied scenes", slog.Int("scene_count", len(scenes)), slog.String("run_id", run.ID.String()))
	} else {
		prompt := run.EnhancedPrompt
		if prompt == "" {
			enhanced, err := s.storyboard.Enhance(ctx, run.OriginalPrompt, run.TargetDuration)
			if err != nil {
				return result, fmt.Errorf("enhancing prompt: %w", err)
			}
			prompt = enhanced.EnhancedPrompt
			run.EnhancedPrompt = prompt
			if run.Title == "" {
				run.Title = enhanced.Title
			}
		}

		decomposed, err := s.storyboard.Decompose(ctx, prompt, run.TargetDuration, run.SegmentDuration)
		if err != nil {
			s.log(ctx, slog.LevelWarn, "decomposition failed, using fallback storyboard",
				slog.String("error", err.Error()), slog.String("run_id", run.ID.String()))
			decomposed = fallbackDecomposition(prompt, run.TargetDuration, run.SegmentDuration)
		}
		if len(decomposed) == 0 {
			return result, core.ErrNoStoryboard
		}

		scenes = make([]*models.Scene, 0, len(decomposed))
		for _, d := range decomposed {
			scenes = append(scenes, &models.Scene{
				VideoRunID:        run.ID,
				SceneNumber:       d.SceneNumber,
				ScenePrompt:       d.ScenePrompt,
				VisualDescription: d.VisualDescription,
				ContinuityNotes:   d.ContinuityNotes,
				NarrationText:     d.NarrationText,
				StartTime:         d.StartTime,
				EndTime:           d.EndTime,
				TransitionType:    d.TransitionType,
			})
		}

		if err := s.runRepo.CreateScenes(ctx, scenes); err != nil {
			return result, fmt.Errorf("persisting scenes: %w", err)
		}
	}

	segments := make([]*models.Segment, 0, len(scenes))
	for _, sc := range scenes {
		segments = append(segments, &models.Segment{
			VideoRunID:    run.ID,
			SegmentNumber: sc.SceneNumber,
			Status:        models.SegmentStatusPending,
		})
	}
	if err := s.runRepo.CreateSegments(ctx, segments); err != nil {
		return result, fmt.Errorf("persisting pending segments: %w", err)
	}

	state.Scenes = scenes
	state.SegmentCount = len(scenes)
	run.SegmentCount = len(scenes)

	shared.FinishPhase(run, shared.PhaseDecomposing)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting run after decomposition: %w", err)
	}

	result.RecordsProcessed = len(scenes)
	result.Message = fmt.Sprintf("decomposed into %d scenes", len(scenes))
	result.Artifacts = append(result.Artifacts, core.NewArtifact(core.ArtifactTypeStoryboard, core.ProcessingStageGenerated, StageID))

	s.log(ctx, slog.LevelInfo, "storyboard decomposed",
		slog.Int("scene_count", len(scenes)),
		slog.String("run_id", run.ID.String()))

	return result, nil
}

// fallbackDecomposition builds a deterministic N-scene storyboard when the
// configured StoryboardProvider fails: contiguous times, crossfade
// transitions, generic scene prompts derived from the original prompt.
func fallbackDecomposition(prompt string, targetDuration, segmentDuration int) []provider.DecomposedScene {
	n := models.ComputeSegmentCount(targetDuration, segmentDuration)
	if n <= 0 {
		n = 1
	}
	scenes := make([]provider.DecomposedScene, 0, n)
	start := 0.0
	for i := 1; i <= n; i++ {
		end := start + float64(segmentDuration)
		if i == n {
			end = float64(targetDuration)
		}
		scenes = append(scenes, provider.DecomposedScene{
			SceneNumber:    i,
			ScenePrompt:    fmt.Sprintf("%s — Scene %d of %d", prompt, i, n),
			StartTime:      start,
			EndTime:        end,
			TransitionType: models.TransitionCrossfade,
		})
		start = end
	}
	return scenes
}
