// Package generate implements the generating pipeline stage: it drives the
// configured VideoSegmentProvider to produce one video clip per scene,
// consulting the content-addressed segment cache first and extracting a
// continuity frame from each clip for the next scene's generation hint.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmylchreest/promptvid/internal/cache"
	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/pipeline/core"
	"github.com/jmylchreest/promptvid/internal/pipeline/shared"
	"github.com/jmylchreest/promptvid/internal/provider"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/retry"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/jmylchreest/promptvid/internal/toolchain"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "generating"
	// StageName is the human-readable name for this stage.
	StageName = "Generating segments"

	pollInterval = 3 * time.Second

	// MetadataKeySegmentPaths is the key under which the ordered list of
	// generated segment file paths is stashed in State.Metadata.
	MetadataKeySegmentPaths = "segment_paths"
)

// Stage generates one video segment per scene.
type Stage struct {
	shared.BaseStage
	segments  provider.VideoSegmentProvider
	runRepo   repository.VideoRunRepository
	layout    *storage.Layout
	cache     *cache.SegmentCache
	toolchain *toolchain.Toolchain
	policy    retry.Policy
	logger    *slog.Logger
}

// New creates a new generating stage.
func New(segments provider.VideoSegmentProvider, runRepo repository.VideoRunRepository, layout *storage.Layout, segCache *cache.SegmentCache, tc *toolchain.Toolchain) *Stage {
	return &Stage{
		BaseStage: shared.NewBaseStage(StageID, StageName),
		segments:  segments,
		runRepo:   runRepo,
		layout:    layout,
		cache:     segCache,
		toolchain: tc,
		policy:    retry.Default(),
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.VideoSegment, deps.VideoRunRepo, deps.Layout, deps.SegmentCache, deps.Toolchain)
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

// Execute generates (or reuses from cache) every scene's video segment.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()
	run := state.Run

	if len(state.Scenes) == 0 {
		return result, core.ErrNoStoryboard
	}

	shared.EnterPhase(run, shared.PhaseGenerating)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting generating phase entry: %w", err)
	}

	var continuityHint []byte
	segmentPaths := make([]string, len(state.Scenes))

	for i, scene := range state.Scenes {
		if current, err := s.runRepo.GetByID(ctx, run.ID); err == nil && current != nil && current.CancelRequested {
			return result, core.ErrCancelled
		}

		segment, err := s.runRepo.GetSegment(ctx, run.ID, scene.SceneNumber)
		if err != nil {
			return result, fmt.Errorf("loading segment %d: %w", scene.SceneNumber, err)
		}

		targetPath, err := s.layout.AbsPath(s.layout.SegmentPath(run.UserID, run.ID, scene.SceneNumber))
		if err != nil {
			return result, fmt.Errorf("resolving segment %d path: %w", scene.SceneNumber, err)
		}

		hasSuccessor := i < len(state.Scenes)-1

		reused := false
		if segment.Status == models.SegmentStatusCompleted {
			if _, statErr := os.Stat(targetPath); statErr == nil {
				segmentPaths[i] = targetPath
				if hasSuccessor {
					continuityHint, _ = s.recordLastFrame(ctx, run, segment, targetPath)
				}
				reused = true
			}
		}

		if !reused {
			if hit, err := s.cache.CopyTo(ctx, scene.ScenePrompt, scene.SceneNumber, targetPath); err == nil && hit {
				s.markCompleted(ctx, segment, targetPath)
				segmentPaths[i] = targetPath
				if hasSuccessor {
					continuityHint, _ = s.recordLastFrame(ctx, run, segment, targetPath)
				}
				result.RecordsModified++
				reused = true
			}
		}

		if !reused {
			segmentDuration := scene.EndTime - scene.StartTime
			if segmentDuration <= 0 {
				segmentDuration = float64(run.SegmentDuration)
			}

			filePath, err := s.generateWithRetry(ctx, scene, int(segmentDuration+0.5), continuityHint, targetPath, segment)
			if err != nil {
				segment.MarkFailed(err)
				_ = s.runRepo.UpdateSegment(ctx, segment)
				return result, fmt.Errorf("generating segment %d: %w", scene.SceneNumber, err)
			}

			s.markCompleted(ctx, segment, filePath)
			if _, err := s.cache.Store(ctx, scene.ScenePrompt, scene.SceneNumber, filePath, segmentDuration); err != nil {
				s.log(ctx, slog.LevelWarn, "failed to cache segment", slog.Int("segment", scene.SceneNumber), slog.String("error", err.Error()))
			}

			segmentPaths[i] = filePath
			if hasSuccessor {
				continuityHint, _ = s.recordLastFrame(ctx, run, segment, filePath)
			}
			result.RecordsProcessed++
		}

		run.CurrentSegment = scene.SceneNumber
		run.Progress = shared.SegmentProgress(i, len(state.Scenes))
		if err := s.runRepo.Update(ctx, run); err != nil {
			s.log(ctx, slog.LevelWarn, "failed to persist generating progress", slog.Int("segment", scene.SceneNumber), slog.String("error", err.Error()))
		}

		if state.ProgressReporter != nil {
			state.ProgressReporter.ReportItemProgress(ctx, StageID, i+1, len(state.Scenes), fmt.Sprintf("segment %d", scene.SceneNumber))
		}
	}

	for i, p := range segmentPaths {
		if p == "" {
			return result, fmt.Errorf("segment %d: %w", state.Scenes[i].SceneNumber, core.ErrNoSegments)
		}
		result.Artifacts = append(result.Artifacts, core.NewArtifact(core.ArtifactTypeSegment, core.ProcessingStageGenerated, StageID).WithFilePath(p))
	}

	shared.FinishPhase(run, shared.PhaseGenerating)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting generating phase completion: %w", err)
	}

	state.SetMetadata(MetadataKeySegmentPaths, segmentPaths)
	return result, nil
}

// generateWithRetry starts, polls and fetches a segment, retrying transient
// provider failures up to the configured policy's max attempts.
func (s *Stage) generateWithRetry(ctx context.Context, scene *models.Scene, durationSecs int, continuityHint []byte, targetPath string, segment *models.Segment) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		jobID, err := s.segments.Start(ctx, scene.ScenePrompt, provider.SegmentWidth, provider.SegmentHeight, durationSecs, continuityHint)
		if err == nil {
			segment.MarkGenerating(jobID)
			_ = s.runRepo.UpdateSegment(ctx, segment)
			path, pollErr := s.pollAndFetch(ctx, jobID, targetPath)
			if pollErr == nil {
				return path, nil
			}
			err = pollErr
		}

		lastErr = err
		segment.RetryCount = attempt
		if !s.policy.ShouldRetry(attempt, err) {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.policy.Delay(attempt)):
		}
	}
	return "", lastErr
}

func (s *Stage) pollAndFetch(ctx context.Context, jobID, targetPath string) (string, error) {
	for {
		result, err := s.segments.Poll(ctx, jobID)
		if err != nil {
			return "", err
		}
		switch result.State {
		case provider.JobStateSucceeded:
			if len(result.GenerationIDs) == 0 {
				return "", fmt.Errorf("job %s succeeded with no generation ids", jobID)
			}
			data, err := s.segments.FetchContent(ctx, result.GenerationIDs[0])
			if err != nil {
				return "", fmt.Errorf("fetching generation content: %w", err)
			}
			if err := os.WriteFile(targetPath, data, 0o644); err != nil {
				return "", fmt.Errorf("writing segment file: %w", err)
			}
			return targetPath, nil
		case provider.JobStateFailed:
			return "", fmt.Errorf("segment generation job %s failed: %s", jobID, result.Error)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (s *Stage) markCompleted(ctx context.Context, segment *models.Segment, path string) {
	segment.MarkCompleted(path)
	if err := s.runRepo.UpdateSegment(ctx, segment); err != nil {
		s.log(ctx, slog.LevelWarn, "failed to persist completed segment", slog.Int("segment", segment.SegmentNumber), slog.String("error", err.Error()))
	}
}

// recordLastFrame extracts the continuity frame for segment, persists its
// path onto segment.LastFramePath (invariant 5 of §8: every completed
// segment with a successor has an on-disk last frame recorded), and
// returns the frame bytes to use as the next scene's continuity hint.
func (s *Stage) recordLastFrame(ctx context.Context, run *models.VideoRun, segment *models.Segment, videoPath string) ([]byte, error) {
	framePath, err := s.layout.AbsPath(s.layout.FramePath(run.UserID, run.ID, segment.SegmentNumber))
	if err != nil {
		return nil, err
	}
	if err := s.toolchain.ExtractLastFrame(ctx, videoPath, framePath); err != nil {
		s.log(ctx, slog.LevelWarn, "failed to extract continuity frame", slog.Int("segment", segment.SegmentNumber), slog.String("error", err.Error()))
		return nil, err
	}
	segment.LastFramePath = framePath
	if err := s.runRepo.UpdateSegment(ctx, segment); err != nil {
		s.log(ctx, slog.LevelWarn, "failed to persist last frame path", slog.Int("segment", segment.SegmentNumber), slog.String("error", err.Error()))
	}
	return os.ReadFile(framePath)
}
