package core

import (
	"context"
	"log/slog"

	"github.com/jmylchreest/promptvid/internal/cache"
	"github.com/jmylchreest/promptvid/internal/provider"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/jmylchreest/promptvid/internal/toolchain"

	"github.com/jmylchreest/promptvid/internal/models"
)

// Dependencies bundles all dependencies needed by pipeline stages.
// This reduces parameter count and makes dependency injection cleaner.
type Dependencies struct {
	VideoRunRepo  repository.VideoRunRepository
	VideoSpecRepo repository.VideoSpecRepository
	Layout        *storage.Layout
	SegmentCache  *cache.SegmentCache
	Toolchain     *toolchain.Toolchain
	Storyboard    provider.StoryboardProvider
	VideoSegment  provider.VideoSegmentProvider
	Narration     provider.NarrationProvider
	Logger        *slog.Logger
	Config        Config
}

// StageConstructor is a function that creates a stage given dependencies.
type StageConstructor func(deps *Dependencies) Stage

// Factory creates configured Orchestrator instances with all required stages.
type Factory struct {
	deps              *Dependencies
	stageConstructors []StageConstructor
}

// NewFactory creates a new pipeline Factory.
func NewFactory(deps *Dependencies) *Factory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Factory{
		deps:              deps,
		stageConstructors: make([]StageConstructor, 0),
	}
}

// RegisterStage adds a stage constructor to the factory.
// Stages are executed in the order they are registered (decomposing,
// generating, stitching, audio, merging, transcoding).
func (f *Factory) RegisterStage(constructor StageConstructor) {
	f.stageConstructors = append(f.stageConstructors, constructor)
}

// Create creates a new Orchestrator configured to process run against spec.
// The returned orchestrator includes all registered stages, in registration
// order.
func (f *Factory) Create(ctx context.Context, run *models.VideoRun, spec *models.VideoSpec) (*Orchestrator, error) {
	if err := f.deps.Layout.CreateRunTree(ctx, run.UserID, run.ID); err != nil {
		return nil, err
	}

	resolvedOutput, err := f.deps.Layout.AbsPath(f.deps.Layout.RunRoot(run.UserID, run.ID))
	if err != nil {
		return nil, err
	}

	stages := make([]Stage, 0, len(f.stageConstructors))
	for _, constructor := range f.stageConstructors {
		stage := constructor(f.deps)
		stages = append(stages, stage)
	}

	orchestrator := NewOrchestrator(run, spec, stages, resolvedOutput, f.deps.Logger)
	orchestrator.SetStatePersister(&repoStatePersister{repo: f.deps.VideoRunRepo})
	orchestrator.SetCancellationChecker(&repoCancellationChecker{repo: f.deps.VideoRunRepo})
	return orchestrator, nil
}

// OrchestratorFactory defines the interface for creating orchestrators.
type OrchestratorFactory interface {
	Create(ctx context.Context, run *models.VideoRun, spec *models.VideoSpec) (*Orchestrator, error)
}

// Ensure Factory implements OrchestratorFactory.
var _ OrchestratorFactory = (*Factory)(nil)

// repoStatePersister persists state.Run via the video run repository after
// every phase transition, satisfying the crash-resume invariant of §4.9:
// "if the process crashes, the persisted state is sufficient to resume or
// mark failed."
type repoStatePersister struct {
	repo repository.VideoRunRepository
}

func (p *repoStatePersister) PersistProgress(ctx context.Context, state *State) error {
	return p.repo.Update(ctx, state.Run)
}

// repoCancellationChecker consults the authoritative store for a run's
// cancellation flag, since a cancel request arrives via a concurrent API
// call rather than through the pipeline's own in-memory state.
type repoCancellationChecker struct {
	repo repository.VideoRunRepository
}

func (c *repoCancellationChecker) IsCancelled(ctx context.Context, runID models.ULID) (bool, error) {
	run, err := c.repo.GetByID(ctx, runID)
	if err != nil {
		return false, err
	}
	if run == nil {
		return false, nil
	}
	return run.CancelRequested, nil
}
