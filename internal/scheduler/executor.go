package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/repository"
)

// JobHandler defines the interface for handling specific job types.
type JobHandler interface {
	// Execute runs the job and returns a result string or error.
	Execute(ctx context.Context, job *models.Job) (string, error)
}

// LockSweeper abstracts the subset of lock.Service the scheduler depends on,
// so the handler can be tested without a real store.
type LockSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// CacheCleaner abstracts the subset of cache.SegmentCache the scheduler
// depends on.
type CacheCleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// RunRecoverer abstracts the subset of recovery.Service the scheduler
// depends on.
type RunRecoverer interface {
	SweepOrphans(ctx context.Context) (int, error)
}

// LockSweepHandler runs the processing-lock expiry sweep, releasing any
// lock whose TTL has passed without being renewed.
type LockSweepHandler struct {
	locks LockSweeper
}

// NewLockSweepHandler creates a handler for the lock-sweep maintenance job.
func NewLockSweepHandler(locks LockSweeper) *LockSweepHandler {
	return &LockSweepHandler{locks: locks}
}

// Execute runs one lock-expiry sweep.
func (h *LockSweepHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	count, err := h.locks.Sweep(ctx)
	if err != nil {
		return "", fmt.Errorf("sweeping expired locks: %w", err)
	}
	return fmt.Sprintf("released %d expired lock(s)", count), nil
}

// CacheCleanupHandler runs the segment-cache TTL cleanup sweep, pruning
// entries that have outlived their cache TTL.
type CacheCleanupHandler struct {
	cache CacheCleaner
}

// NewCacheCleanupHandler creates a handler for the cache-cleanup maintenance job.
func NewCacheCleanupHandler(cache CacheCleaner) *CacheCleanupHandler {
	return &CacheCleanupHandler{cache: cache}
}

// Execute runs one cache cleanup sweep.
func (h *CacheCleanupHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	pruned, err := h.cache.Cleanup(ctx)
	if err != nil {
		return "", fmt.Errorf("cleaning up segment cache: %w", err)
	}
	return fmt.Sprintf("pruned %d expired cache entries", pruned), nil
}

// RecoverySweepHandler runs the orphaned-VideoRun recovery sweep, marking
// any non-terminal run untouched past the orphan age as interrupted.
type RecoverySweepHandler struct {
	recovery RunRecoverer
}

// NewRecoverySweepHandler creates a handler for the recovery-sweep maintenance job.
func NewRecoverySweepHandler(recovery RunRecoverer) *RecoverySweepHandler {
	return &RecoverySweepHandler{recovery: recovery}
}

// Execute runs one orphan-recovery sweep.
func (h *RecoverySweepHandler) Execute(ctx context.Context, job *models.Job) (string, error) {
	swept, err := h.recovery.SweepOrphans(ctx)
	if err != nil {
		return "", fmt.Errorf("sweeping orphaned video runs: %w", err)
	}
	return fmt.Sprintf("marked %d orphaned run(s) as interrupted", swept), nil
}

// Executor dispatches jobs to the appropriate handlers.
type Executor struct {
	handlers map[models.JobType]JobHandler
	jobRepo  repository.JobRepository
	logger   *slog.Logger
}

// NewExecutor creates a new job executor.
func NewExecutor(jobRepo repository.JobRepository) *Executor {
	return &Executor{
		handlers: make(map[models.JobType]JobHandler),
		jobRepo:  jobRepo,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (e *Executor) WithLogger(logger *slog.Logger) *Executor {
	e.logger = logger
	return e
}

// RegisterHandler registers a handler for a job type.
func (e *Executor) RegisterHandler(jobType models.JobType, handler JobHandler) {
	e.handlers[jobType] = handler
}

// Execute runs a job and updates its status.
func (e *Executor) Execute(ctx context.Context, job *models.Job) error {
	handler, ok := e.handlers[job.Type]
	if !ok {
		return fmt.Errorf("no handler registered for job type: %s", job.Type)
	}

	e.logger.Info("executing job",
		slog.String("job_id", job.ID.String()),
		slog.String("type", string(job.Type)),
		slog.String("target", job.TargetName))

	// Execute the job
	result, err := handler.Execute(ctx, job)

	if err != nil {
		e.logger.Error("job failed",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.Any("error", err))

		job.MarkFailed(err)

		// Schedule retry if possible
		if job.CanRetry() {
			job.ScheduleRetry()
			e.logger.Info("job scheduled for retry",
				slog.String("job_id", job.ID.String()),
				slog.Int("attempt", job.AttemptCount),
				slog.Time("next_run", job.NextRunAt.UTC()))
		}
	} else {
		e.logger.Info("job completed",
			slog.String("job_id", job.ID.String()),
			slog.String("type", string(job.Type)),
			slog.String("result", result))

		job.MarkCompleted(result)
	}

	// Save job status
	if err := e.jobRepo.Update(ctx, job); err != nil {
		e.logger.Error("failed to update job status",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err))
		return fmt.Errorf("updating job status: %w", err)
	}

	// Create history record for completed/failed jobs
	if job.IsFinished() {
		e.createHistoryRecord(ctx, job)
	}

	return nil
}

// createHistoryRecord creates a job history record.
func (e *Executor) createHistoryRecord(ctx context.Context, job *models.Job) {
	history := &models.JobHistory{
		JobID:         job.ID,
		Type:          job.Type,
		TargetID:      job.TargetID,
		TargetName:    job.TargetName,
		Status:        job.Status,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		DurationMs:    job.DurationMs,
		AttemptNumber: job.AttemptCount,
		Error:         job.LastError,
		Result:        job.Result,
	}

	if err := e.jobRepo.CreateHistory(ctx, history); err != nil {
		e.logger.Error("failed to create job history",
			slog.String("job_id", job.ID.String()),
			slog.Any("error", err))
	}
}
