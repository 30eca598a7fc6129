package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/jmylchreest/promptvid/internal/models"
)

// activeExecutions tracks which video runs have an orchestrator running in
// this process. It is a fast in-process guard against double-invocation; it
// is NOT the authoritative exclusivity mechanism across process restarts or
// multiple instances, which is the persisted Processing Lock the caller must
// acquire before constructing an Orchestrator.
var (
	activeExecutions   = make(map[models.ULID]bool)
	activeExecutionsMu sync.Mutex
)

// StatePersister saves run progress between phase transitions so a crash can
// resume from the last persisted state instead of the beginning.
type StatePersister interface {
	PersistProgress(ctx context.Context, state *State) error
}

// CancellationChecker reports whether a run's cancellation has been
// requested, consulted by the orchestrator between phases (and by the
// generating stage between segments). Implementations read the
// authoritative store value rather than the in-memory State, since a
// cancel request arrives via a concurrent API call, not through the
// pipeline itself.
type CancellationChecker interface {
	IsCancelled(ctx context.Context, runID models.ULID) (bool, error)
}

// Orchestrator executes a sequence of pipeline stages.
type Orchestrator struct {
	stages           []Stage
	state            *State
	logger           *slog.Logger
	outputDir        string
	progressReporter ProgressReporter
	persister        StatePersister
	cancelChecker    CancellationChecker
}

// NewOrchestrator creates a new Orchestrator with the given stages.
func NewOrchestrator(run *models.VideoRun, spec *models.VideoSpec, stages []Stage, outputDir string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		stages:    stages,
		state:     NewState(run, spec),
		logger:    logger,
		outputDir: outputDir,
	}
}

// SetProgressReporter sets an optional progress reporter.
func (o *Orchestrator) SetProgressReporter(reporter ProgressReporter) {
	o.progressReporter = reporter
}

// SetStatePersister sets the hook used to persist progress before and after
// every phase transition, satisfying the crash-resume invariant.
func (o *Orchestrator) SetStatePersister(persister StatePersister) {
	o.persister = persister
}

// SetCancellationChecker sets the hook consulted between phases to honor a
// cancellation request (§5: cancellation is observed between phases and
// between segments, never by preempting an in-flight external call).
func (o *Orchestrator) SetCancellationChecker(checker CancellationChecker) {
	o.cancelChecker = checker
}

// Execute runs all stages in sequence.
// Returns a Result with execution details and any errors.
func (o *Orchestrator) Execute(ctx context.Context) (*Result, error) {
	result := &Result{
		Success:      false,
		StageResults: make(map[string]*StageResult),
	}

	// Prevent duplicate executions for the same run within this process.
	if !o.acquireExecution() {
		return result, ErrPipelineAlreadyRunning
	}
	defer o.releaseExecution()

	tempDir, err := os.MkdirTemp("", fmt.Sprintf("promptvid-run-%s-*", o.state.RunID))
	if err != nil {
		return result, fmt.Errorf("creating temp directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			o.logger.Warn("failed to remove temp directory",
				slog.String("path", tempDir),
				slog.String("error", err.Error()),
			)
		} else {
			o.logger.Debug("removed temp directory",
				slog.String("path", tempDir),
			)
		}
	}()

	o.state.TempDir = tempDir
	o.state.OutputDir = o.outputDir
	o.state.ProgressReporter = o.progressReporter

	o.logger.InfoContext(ctx, "starting video run",
		slog.String("run_id", o.state.RunID.String()),
		slog.Int("stage_count", len(o.stages)),
	)

	startTime := time.Now()

	for i, stage := range o.stages {
		select {
		case <-ctx.Done():
			result.Errors = append(result.Errors, ctx.Err())
			result.Duration = time.Since(startTime)
			o.cleanupStages(ctx, o.stages[:i+1])
			return result, ctx.Err()
		default:
		}

		if o.cancelChecker != nil {
			cancelled, err := o.cancelChecker.IsCancelled(ctx, o.state.RunID)
			if err != nil {
				o.logger.Warn("failed to check cancellation", slog.String("error", err.Error()))
			} else if cancelled {
				result.Errors = append(result.Errors, ErrCancelled)
				result.Duration = time.Since(startTime)
				o.cleanupStages(ctx, o.stages[:i+1])
				return result, ErrCancelled
			}
		}

		if o.persister != nil {
			if err := o.persister.PersistProgress(ctx, o.state); err != nil {
				o.logger.Warn("failed to persist progress before stage",
					slog.String("stage_id", stage.ID()),
					slog.String("error", err.Error()),
				)
			}
		}

		stageResult, err := o.executeStage(ctx, i, stage)
		result.StageResults[stage.ID()] = stageResult

		if err != nil {
			result.Errors = append(result.Errors, NewStageError(stage.ID(), stage.Name(), err))
			result.Duration = time.Since(startTime)
			o.cleanupStages(ctx, o.stages[:i+1])
			return result, err
		}

		if o.persister != nil {
			if perr := o.persister.PersistProgress(ctx, o.state); perr != nil {
				o.logger.Warn("failed to persist progress after stage",
					slog.String("stage_id", stage.ID()),
					slog.String("error", perr.Error()),
				)
			}
		}

		o.cleanupBetweenStages()
	}

	result.Success = true
	result.SegmentCount = o.state.SegmentCount
	result.Duration = time.Since(startTime)
	result.Errors = o.state.Errors

	final720 := filepath.Join(o.state.OutputDir, "final_720p.mp4")
	if _, err := os.Stat(final720); err == nil {
		result.Final720Path = final720
	}
	final480 := filepath.Join(o.state.OutputDir, "final_480p.mp4")
	if _, err := os.Stat(final480); err == nil {
		result.Final480Path = final480
	}

	o.logger.InfoContext(ctx, "video run completed",
		slog.String("run_id", o.state.RunID.String()),
		slog.Int("segment_count", result.SegmentCount),
		slog.Duration("duration", result.Duration),
		slog.Bool("success", result.Success),
	)

	o.cleanupStages(ctx, o.stages)

	return result, nil
}

// executeStage runs a single stage and handles logging/progress.
func (o *Orchestrator) executeStage(ctx context.Context, index int, stage Stage) (*StageResult, error) {
	stageStart := time.Now()

	o.logger.InfoContext(ctx, "executing phase",
		slog.Int("stage_num", index+1),
		slog.Int("total_stages", len(o.stages)),
		slog.String("stage_id", stage.ID()),
		slog.String("stage_name", stage.Name()),
	)

	if o.progressReporter != nil {
		o.progressReporter.ReportProgress(ctx, stage.ID(), 0.0, "Starting")
	}

	stageResult, err := stage.Execute(ctx, o.state)
	if stageResult == nil {
		stageResult = &StageResult{}
	}
	stageResult.Duration = time.Since(stageStart)

	if err != nil {
		o.logger.ErrorContext(ctx, "phase failed",
			slog.String("stage_id", stage.ID()),
			slog.String("stage_name", stage.Name()),
			slog.String("error", err.Error()),
			slog.Duration("duration", stageResult.Duration),
		)
		return stageResult, err
	}

	for _, artifact := range stageResult.Artifacts {
		o.state.AddArtifact(stage.ID(), artifact)
	}

	o.logger.InfoContext(ctx, "phase completed",
		slog.String("stage_id", stage.ID()),
		slog.String("stage_name", stage.Name()),
		slog.Duration("duration", stageResult.Duration),
		slog.Int("records_processed", stageResult.RecordsProcessed),
		slog.Int("artifacts_produced", len(stageResult.Artifacts)),
	)

	if o.progressReporter != nil {
		o.progressReporter.ReportProgress(ctx, stage.ID(), 1.0, "Complete")
	}

	return stageResult, nil
}

// cleanupStages calls Cleanup on all given stages.
func (o *Orchestrator) cleanupStages(ctx context.Context, stages []Stage) {
	for _, stage := range stages {
		if err := stage.Cleanup(ctx); err != nil {
			o.logger.Warn("stage cleanup failed",
				slog.String("stage_id", stage.ID()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// cleanupBetweenStages performs memory cleanup between pipeline stages.
// Segment generation deals with multi-megabyte video buffers; forcing a
// collection between phases keeps peak RSS bounded for longer runs.
func (o *Orchestrator) cleanupBetweenStages() {
	runtime.GC()
}

// acquireExecution tries to acquire the in-process execution guard for this run.
func (o *Orchestrator) acquireExecution() bool {
	activeExecutionsMu.Lock()
	defer activeExecutionsMu.Unlock()

	if activeExecutions[o.state.RunID] {
		return false
	}
	activeExecutions[o.state.RunID] = true
	return true
}

// releaseExecution releases the in-process execution guard for this run.
func (o *Orchestrator) releaseExecution() {
	activeExecutionsMu.Lock()
	defer activeExecutionsMu.Unlock()
	delete(activeExecutions, o.state.RunID)
}

// State returns the current pipeline state (for testing).
func (o *Orchestrator) State() *State {
	return o.state
}

// Stages returns the configured stages (for testing).
func (o *Orchestrator) Stages() []Stage {
	return o.stages
}
