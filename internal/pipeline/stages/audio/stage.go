// Package audio implements the audio pipeline stage: it synthesizes the
// narration script produced during decomposition and adjusts its duration
// to match the stitched video.
package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jmylchreest/promptvid/internal/pipeline/core"
	"github.com/jmylchreest/promptvid/internal/pipeline/shared"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/stitch"
	"github.com/jmylchreest/promptvid/internal/provider"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/jmylchreest/promptvid/internal/toolchain"
)

const (
	// StageID is the unique identifier for this stage.
	StageID = "audio"
	// StageName is the human-readable name for this stage.
	StageName = "Synthesizing narration"

	// MetadataKeyAudioPath is the key under which the adjusted narration
	// track's absolute path is stashed in State.Metadata.
	MetadataKeyAudioPath = "audio_path"

	defaultVoiceModel = "default"
	defaultVoiceID    = "default"
)

// Stage synthesizes and duration-adjusts the narration track.
type Stage struct {
	shared.BaseStage
	narration  provider.NarrationProvider
	storyboard provider.StoryboardProvider
	runRepo    repository.VideoRunRepository
	layout     *storage.Layout
	toolchain  *toolchain.Toolchain
	tolerance  float64
	logger     *slog.Logger
}

// New creates a new audio stage.
func New(narration provider.NarrationProvider, storyboard provider.StoryboardProvider, runRepo repository.VideoRunRepository, layout *storage.Layout, tc *toolchain.Toolchain, tolerance float64) *Stage {
	if tolerance <= 0 {
		tolerance = 0.5
	}
	return &Stage{
		BaseStage:  shared.NewBaseStage(StageID, StageName),
		narration:  narration,
		storyboard: storyboard,
		runRepo:    runRepo,
		layout:     layout,
		toolchain:  tc,
		tolerance:  tolerance,
	}
}

// NewConstructor returns a stage constructor for use with the factory.
func NewConstructor() core.StageConstructor {
	return func(deps *core.Dependencies) core.Stage {
		s := New(deps.Narration, deps.Storyboard, deps.VideoRunRepo, deps.Layout, deps.Toolchain, deps.Config.SyncToleranceSeconds)
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

// Execute synthesizes the narration script and adjusts it to the stitched
// video's duration.
func (s *Stage) Execute(ctx context.Context, state *core.State) (*core.StageResult, error) {
	result := shared.NewResult()
	run := state.Run

	shared.EnterPhase(run, shared.PhaseAudio)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting audio phase entry: %w", err)
	}

	script, err := s.narrationScript(ctx, state)
	if err != nil {
		return result, err
	}

	stitchedDurationVal, ok := state.GetMetadata(stitch.MetadataKeyStitchedDuration)
	stitchedDuration, _ := stitchedDurationVal.(float64)
	if !ok {
		return result, fmt.Errorf("no stitched duration available from stitching stage")
	}

	rawPath, err := s.layout.AbsPath(s.layout.AudioPath(run.UserID, run.ID))
	if err != nil {
		return result, fmt.Errorf("resolving audio path: %w", err)
	}
	scratchPath := rawPath + ".raw"

	voiceID := state.Spec.VoiceID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	settings := provider.VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
	data, err := s.narration.Synthesize(ctx, script, voiceID, defaultVoiceModel, settings)
	if err != nil {
		return result, fmt.Errorf("synthesizing narration: %w", err)
	}
	if err := os.WriteFile(scratchPath, data, 0o644); err != nil {
		return result, fmt.Errorf("writing raw narration audio: %w", err)
	}
	defer os.Remove(scratchPath)

	probe, err := s.toolchain.ProbeMedia(ctx, scratchPath)
	if err != nil {
		return result, fmt.Errorf("probing narration audio: %w", err)
	}

	sync := toolchain.CompareDurations(stitchedDuration, probe.Duration, s.tolerance)
	s.log(ctx, slog.LevelInfo, "sync verification",
		slog.Bool("in_sync", sync.InSync),
		slog.Float64("diff", sync.Diff),
		slog.String("recommendation", sync.Recommendation))

	if err := s.toolchain.AdjustAudio(ctx, scratchPath, probe.Duration, stitchedDuration, rawPath); err != nil {
		return result, fmt.Errorf("adjusting narration duration: %w", err)
	}

	state.SetMetadata(MetadataKeyAudioPath, rawPath)

	shared.FinishPhase(run, shared.PhaseAudio)
	if err := s.runRepo.Update(ctx, run); err != nil {
		return result, fmt.Errorf("persisting audio phase completion: %w", err)
	}

	result.RecordsProcessed = 1
	result.Message = fmt.Sprintf("narration synthesized (%.1fs -> %.1fs)", probe.Duration, stitchedDuration)
	result.Artifacts = append(result.Artifacts, core.NewArtifact(core.ArtifactTypeAudio, core.ProcessingStageGenerated, StageID).WithFilePath(rawPath))

	s.log(ctx, slog.LevelInfo, "narration synthesized",
		slog.Float64("raw_duration", probe.Duration),
		slog.Float64("target_duration", stitchedDuration))

	return result, nil
}

// narrationScript returns the full narration script to synthesize: if every
// scene already carries narration text (caller-supplied or from
// decomposition), the scenes are joined directly; otherwise the configured
// StoryboardProvider is asked to write one from scratch.
func (s *Stage) narrationScript(ctx context.Context, state *core.State) (string, error) {
	if len(state.Scenes) == 0 {
		return "", fmt.Errorf("no scenes available for narration")
	}

	lines := make([]string, 0, len(state.Scenes))
	complete := true
	for _, sc := range state.Scenes {
		if sc.NarrationText == "" {
			complete = false
			break
		}
		lines = append(lines, sc.NarrationText)
	}
	if complete {
		return strings.Join(lines, " "), nil
	}

	decomposed := make([]provider.DecomposedScene, 0, len(state.Scenes))
	for _, sc := range state.Scenes {
		decomposed = append(decomposed, provider.DecomposedScene{
			SceneNumber:       sc.SceneNumber,
			ScenePrompt:       sc.ScenePrompt,
			VisualDescription: sc.VisualDescription,
			ContinuityNotes:   sc.ContinuityNotes,
			NarrationText:     sc.NarrationText,
			StartTime:         sc.StartTime,
			EndTime:           sc.EndTime,
			TransitionType:    sc.TransitionType,
		})
	}

	prompt := state.Run.EnhancedPrompt
	if prompt == "" {
		prompt = state.Run.OriginalPrompt
	}
	script, err := s.storyboard.WriteNarration(ctx, prompt, decomposed, state.Run.TargetDuration)
	if err != nil {
		return "", fmt.Errorf("writing narration: %w", err)
	}
	return script, nil
}
