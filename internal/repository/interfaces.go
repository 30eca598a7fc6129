// Package repository defines data access interfaces for promptvid entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/jmylchreest/promptvid/internal/models"
)

// VideoSpecRepository defines operations for immutable VideoSpec persistence.
type VideoSpecRepository interface {
	// Create persists a new VideoSpec.
	Create(ctx context.Context, spec *models.VideoSpec) error
	// GetByID retrieves a VideoSpec by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.VideoSpec, error)
}

// VideoRunRepository defines operations for VideoRun, Scene and Segment persistence.
type VideoRunRepository interface {
	// Create persists a new VideoRun.
	Create(ctx context.Context, run *models.VideoRun) error
	// GetByID retrieves a VideoRun by ID, without its child scenes/segments.
	GetByID(ctx context.Context, id models.ULID) (*models.VideoRun, error)
	// GetByIDWithRelations retrieves a VideoRun with Scenes and Segments preloaded,
	// ordered by their respective number fields.
	GetByIDWithRelations(ctx context.Context, id models.ULID) (*models.VideoRun, error)
	// GetByUserID retrieves a user's runs newest-first, paginated.
	GetByUserID(ctx context.Context, userID string, offset, limit int) ([]*models.VideoRun, int64, error)
	// Update persists all mutable fields of an existing VideoRun.
	Update(ctx context.Context, run *models.VideoRun) error
	// UpdateProgress atomically updates the phase/progress/current-segment columns only.
	UpdateProgress(ctx context.Context, id models.ULID, phase models.RunStatus, progress, currentSegment int) error
	// Delete removes a VideoRun and its child scenes/segments.
	Delete(ctx context.Context, id models.ULID) error
	// GetActive retrieves all runs not yet in a terminal state, for the recovery sweep.
	GetActive(ctx context.Context) ([]*models.VideoRun, error)
	// RequestCancellation sets the cancel-requested flag on a run.
	RequestCancellation(ctx context.Context, id models.ULID) error

	// CreateScenes persists the storyboard scenes produced during decomposition.
	CreateScenes(ctx context.Context, scenes []*models.Scene) error
	// GetScenesByRunID retrieves a run's scenes ordered by scene_number.
	GetScenesByRunID(ctx context.Context, runID models.ULID) ([]*models.Scene, error)

	// CreateSegments persists the initial (pending) segment rows for a run.
	CreateSegments(ctx context.Context, segments []*models.Segment) error
	// GetSegmentsByRunID retrieves a run's segments ordered by segment_number.
	GetSegmentsByRunID(ctx context.Context, runID models.ULID) ([]*models.Segment, error)
	// GetSegment retrieves a single segment by run ID and segment number.
	GetSegment(ctx context.Context, runID models.ULID, segmentNumber int) (*models.Segment, error)
	// UpdateSegment persists all mutable fields of an existing segment.
	UpdateSegment(ctx context.Context, segment *models.Segment) error
}

// ProcessingLockRepository defines operations for the single, global
// exclusive-processing lock table. Implementations must use an atomic
// compare-and-set operation for Acquire so that only one caller ever wins a
// race against concurrent acquire attempts for the same key.
type ProcessingLockRepository interface {
	// Acquire attempts to atomically claim the lock identified by key for
	// owner, expiring at expiresAt. Returns true if this call won the lock;
	// false if the lock was already held by someone else and unexpired.
	Acquire(ctx context.Context, key, owner string, expiresAt time.Time, videoID models.ULID, userID string, targetDuration int, estimatedCompletion time.Time) (bool, error)
	// Release clears the lock if and only if it is currently held by owner.
	// Returns true if this call released it.
	Release(ctx context.Context, key, owner string) (bool, error)
	// Extend pushes out the expiry of a lock currently held by owner.
	// Returns true if this call extended it.
	Extend(ctx context.Context, key, owner string, newExpiresAt time.Time) (bool, error)
	// Get retrieves the current state of the lock row, creating an unlocked
	// row if none exists yet.
	Get(ctx context.Context, key string) (*models.ProcessingLock, error)
	// SweepExpired releases any lock rows whose expiry has passed, returning
	// the number of locks released.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// JobRepository defines operations for maintenance job persistence (the
// periodic lock-sweep, cache-cleanup and recovery-sweep jobs).
type JobRepository interface {
	// Create creates a new job.
	Create(ctx context.Context, job *models.Job) error
	// GetByID retrieves a job by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.Job, error)
	// GetAll retrieves all jobs.
	GetAll(ctx context.Context) ([]*models.Job, error)
	// GetPending retrieves all pending/scheduled jobs ready for execution.
	GetPending(ctx context.Context) ([]*models.Job, error)
	// GetByStatus retrieves jobs by status.
	GetByStatus(ctx context.Context, status models.JobStatus) ([]*models.Job, error)
	// GetByType retrieves jobs by type.
	GetByType(ctx context.Context, jobType models.JobType) ([]*models.Job, error)
	// GetRunning retrieves all currently running jobs.
	GetRunning(ctx context.Context) ([]*models.Job, error)
	// Update updates an existing job.
	Update(ctx context.Context, job *models.Job) error
	// Delete deletes a job by ID.
	Delete(ctx context.Context, id models.ULID) error
	// DeleteCompleted deletes completed jobs older than the specified duration.
	DeleteCompleted(ctx context.Context, before time.Time) (int64, error)
	// AcquireJob atomically acquires a pending job for execution (sets status to running).
	// Returns nil if no jobs are available or if another worker acquired it first.
	AcquireJob(ctx context.Context, workerID string) (*models.Job, error)
	// ReleaseJob releases a job lock (used when a worker fails unexpectedly).
	ReleaseJob(ctx context.Context, id models.ULID) error
	// FindDuplicatePending finds an existing pending/scheduled/running job of the given type.
	// Used to avoid scheduling overlapping maintenance sweeps.
	FindDuplicatePending(ctx context.Context, jobType models.JobType) (*models.Job, error)
	// CreateHistory creates a job history record.
	CreateHistory(ctx context.Context, history *models.JobHistory) error
	// GetHistory retrieves job history with pagination.
	GetHistory(ctx context.Context, jobType *models.JobType, offset, limit int) ([]*models.JobHistory, int64, error)
	// DeleteHistory deletes history records older than the specified time.
	DeleteHistory(ctx context.Context, before time.Time) (int64, error)
}
