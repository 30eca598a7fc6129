// Package pipeline provides a composable pipeline architecture for video
// generation. Each stage implements the Stage interface and operates on
// shared State.
//
// The pipeline is organized into several sub-packages:
//   - core: Orchestrator, interfaces, and base types
//   - shared: Utilities shared between stages
//   - stages/*: Individual stage implementations
package pipeline

import (
	"github.com/jmylchreest/promptvid/internal/cache"
	"github.com/jmylchreest/promptvid/internal/pipeline/core"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/audio"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/decompose"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/generate"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/merge"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/stitch"
	"github.com/jmylchreest/promptvid/internal/pipeline/stages/transcode"
	"github.com/jmylchreest/promptvid/internal/provider"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/jmylchreest/promptvid/internal/toolchain"

	"log/slog"
)

// Re-export core types for convenience.
type (
	// Stage is a single step in the pipeline.
	Stage = core.Stage

	// State holds shared data between stages.
	State = core.State

	// Result is the outcome of pipeline execution.
	Result = core.Result

	// StageResult is the outcome of a single stage.
	StageResult = core.StageResult

	// Orchestrator executes stages in sequence.
	Orchestrator = core.Orchestrator

	// OrchestratorFactory creates orchestrators.
	OrchestratorFactory = core.OrchestratorFactory

	// Factory creates orchestrators.
	Factory = core.Factory

	// Dependencies bundles stage dependencies.
	Dependencies = core.Dependencies

	// Config holds pipeline configuration.
	Config = core.Config

	// Builder provides fluent factory construction.
	Builder = core.Builder

	// Artifact represents stage output.
	Artifact = core.Artifact

	// ArtifactType identifies artifact content.
	ArtifactType = core.ArtifactType

	// ProcessingStage indicates processing state.
	ProcessingStage = core.ProcessingStage

	// ProgressReporter allows progress tracking.
	ProgressReporter = core.ProgressReporter

	// StageConstructor creates stages from dependencies.
	StageConstructor = core.StageConstructor
)

// Re-export artifact types.
const (
	ArtifactTypeStoryboard = core.ArtifactTypeStoryboard
	ArtifactTypeSegment    = core.ArtifactTypeSegment
	ArtifactTypeStitched   = core.ArtifactTypeStitched
	ArtifactTypeAudio      = core.ArtifactTypeAudio
	ArtifactTypeMerged     = core.ArtifactTypeMerged
	ArtifactTypeFinal      = core.ArtifactTypeFinal
	ArtifactTypeThumbnail  = core.ArtifactTypeThumbnail
)

// Re-export processing stages.
const (
	ProcessingStageRaw       = core.ProcessingStageRaw
	ProcessingStageGenerated = core.ProcessingStageGenerated
	ProcessingStagePublished = core.ProcessingStagePublished
)

// Re-export errors.
var (
	ErrNoStoryboard           = core.ErrNoStoryboard
	ErrNoSegments             = core.ErrNoSegments
	ErrPipelineAlreadyRunning = core.ErrPipelineAlreadyRunning
	ErrStageNotFound          = core.ErrStageNotFound
	ErrInvalidConfiguration   = core.ErrInvalidConfiguration
	ErrCancelled              = core.ErrCancelled
)

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return core.NewBuilder()
}

// NewState creates a new pipeline state.
var NewState = core.NewState

// NewFactory creates a new pipeline factory with the given dependencies.
func NewFactory(deps *Dependencies) *Factory {
	return core.NewFactory(deps)
}

// NewDefaultFactory creates a factory with the standard six-phase stage
// configuration: decomposing, generating, stitching, audio, merging,
// transcoding, in that order.
func NewDefaultFactory(
	videoRunRepo repository.VideoRunRepository,
	videoSpecRepo repository.VideoSpecRepository,
	layout *storage.Layout,
	segmentCache *cache.SegmentCache,
	tc *toolchain.Toolchain,
	storyboard provider.StoryboardProvider,
	videoSegment provider.VideoSegmentProvider,
	narration provider.NarrationProvider,
	logger *slog.Logger,
	config Config,
) *Factory {
	deps := &Dependencies{
		VideoRunRepo:  videoRunRepo,
		VideoSpecRepo: videoSpecRepo,
		Layout:        layout,
		SegmentCache:  segmentCache,
		Toolchain:     tc,
		Storyboard:    storyboard,
		VideoSegment:  videoSegment,
		Narration:     narration,
		Logger:        logger,
		Config:        config,
	}

	factory := NewFactory(deps)

	factory.RegisterStage(decompose.NewConstructor())
	factory.RegisterStage(generate.NewConstructor())
	factory.RegisterStage(stitch.NewConstructor())
	factory.RegisterStage(audio.NewConstructor())
	factory.RegisterStage(merge.NewConstructor())
	factory.RegisterStage(transcode.NewConstructor())

	return factory
}

// Stage IDs for reference.
const (
	StageIDDecomposing = decompose.StageID
	StageIDGenerating  = generate.StageID
	StageIDStitching   = stitch.StageID
	StageIDAudio       = audio.StageID
	StageIDMerging     = merge.StageID
	StageIDTranscoding = transcode.StageID
)
