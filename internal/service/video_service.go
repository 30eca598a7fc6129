package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/promptvid/internal/lock"
	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/pipeline"
	"github.com/jmylchreest/promptvid/internal/recovery"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/storage"
)

// Common errors returned by VideoService.
var (
	// ErrVideoNotFound indicates the requested VideoRun does not exist.
	ErrVideoNotFound = errors.New("video run not found")
	// ErrOrchestratorBusy indicates the global processing lock is held by
	// another run; the caller should retry later.
	ErrOrchestratorBusy = errors.New("orchestrator busy")
	// ErrVideoNotTerminal indicates an operation that requires a terminal
	// run (delete) was attempted on a run still processing.
	ErrVideoNotTerminal = errors.New("video run has not reached a terminal state")
)

// lockOwnerPrefix namespaces lock ownership strings; each acquisition appends
// a fresh ULID, and the same owner string is passed on to Release so it
// matches the owner that acquired the lock.
const lockOwnerPrefix = "orchestrator-"

// VideoService drives the end-to-end lifecycle of a video generation
// request: spec validation, run creation, exclusive-lock acquisition,
// asynchronous pipeline dispatch, and status/segment projections.
type VideoService struct {
	specRepo repository.VideoSpecRepository
	runRepo  repository.VideoRunRepository
	layout   *storage.Layout
	lockSvc  *lock.Service
	factory  pipeline.OrchestratorFactory
	recovery *recovery.Service
	logger   *slog.Logger
	lockTTL  time.Duration
	maxRetry int
}

// NewVideoService creates a new VideoService.
func NewVideoService(
	specRepo repository.VideoSpecRepository,
	runRepo repository.VideoRunRepository,
	layout *storage.Layout,
	lockSvc *lock.Service,
	factory pipeline.OrchestratorFactory,
	recoverySvc *recovery.Service,
) *VideoService {
	return &VideoService{
		specRepo: specRepo,
		runRepo:  runRepo,
		layout:   layout,
		lockSvc:  lockSvc,
		factory:  factory,
		recovery: recoverySvc,
		logger:   slog.Default(),
		lockTTL:  lock.DefaultTimeout,
		maxRetry: 3,
	}
}

// WithLogger sets the logger.
func (s *VideoService) WithLogger(logger *slog.Logger) *VideoService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithLockTimeout overrides the default processing-lock timeout.
func (s *VideoService) WithLockTimeout(d time.Duration) *VideoService {
	if d > 0 {
		s.lockTTL = d
	}
	return s
}

// WithMaxSegmentRetries overrides the default per-segment retry cap used
// when validating segment rows (forwarded, not enforced here).
func (s *VideoService) WithMaxSegmentRetries(n int) *VideoService {
	if n > 0 {
		s.maxRetry = n
	}
	return s
}

// SceneInput is a caller-supplied scene, used to skip LLM decomposition
// entirely when the caller already knows the storyboard (§6: `scenes?[]`
// on the create request body).
type SceneInput struct {
	ScenePrompt       string
	VisualDescription string
	ContinuityNotes   string
	NarrationText     string
	TransitionType    models.TransitionType
}

// CreateRequest is the validated input to Create.
type CreateRequest struct {
	UserID         string
	OriginalPrompt string
	EnhancedPrompt string
	TargetDuration int
	VoiceID        string
	DefaultSegment int
	Scenes         []SceneInput
}

// Create validates and persists a new VideoSpec/VideoRun pair, attempts to
// acquire the global processing lock, and if successful dispatches the
// orchestrator asynchronously. It returns immediately with the pending run;
// callers observe progress via GetStatus. If the lock is held by another
// run, ErrOrchestratorBusy is returned and nothing is persisted.
func (s *VideoService) Create(ctx context.Context, req CreateRequest) (*models.VideoRun, error) {
	segmentDuration := models.ComputeSegmentDuration(req.TargetDuration, req.DefaultSegment)
	segmentCount := models.ComputeSegmentCount(req.TargetDuration, segmentDuration)

	spec := &models.VideoSpec{
		UserID:          req.UserID,
		OriginalPrompt:  req.OriginalPrompt,
		EnhancedPrompt:  req.EnhancedPrompt,
		TargetDuration:  req.TargetDuration,
		SegmentDuration: segmentDuration,
		SegmentCount:    segmentCount,
		VoiceID:         req.VoiceID,
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	owner := lockOwnerPrefix + models.NewULID().String()
	acquired, err := s.lockSvc.Acquire(ctx, lock.Key, owner, lock.Metadata{
		UserID:         req.UserID,
		TargetDuration: req.TargetDuration,
	}, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquiring processing lock: %w", err)
	}
	if !acquired {
		return nil, ErrOrchestratorBusy
	}

	if err := s.specRepo.Create(ctx, spec); err != nil {
		_, _ = s.lockSvc.Release(context.WithoutCancel(ctx), lock.Key, owner)
		return nil, fmt.Errorf("persisting video spec: %w", err)
	}

	run := models.NewVideoRunFromSpec(spec)
	if err := run.Validate(); err != nil {
		_, _ = s.lockSvc.Release(context.WithoutCancel(ctx), lock.Key, owner)
		return nil, err
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		_, _ = s.lockSvc.Release(context.WithoutCancel(ctx), lock.Key, owner)
		return nil, fmt.Errorf("persisting video run: %w", err)
	}

	if len(req.Scenes) > 0 {
		scenes := scenesFromInput(run.ID, req.Scenes, req.TargetDuration, segmentDuration)
		if err := s.runRepo.CreateScenes(ctx, scenes); err != nil {
			_, _ = s.lockSvc.Release(context.WithoutCancel(ctx), lock.Key, owner)
			return nil, fmt.Errorf("persisting supplied scenes: %w", err)
		}
	}

	go s.dispatch(run, spec, owner)

	return run, nil
}

// scenesFromInput builds persistable Scenes from caller-supplied input,
// assigning ordered scene numbers and contiguous [startTime,endTime) ranges
// the same way decomposition does (§3: endTime-startTime = segmentDuration,
// last scene may be shorter).
func scenesFromInput(runID models.ULID, inputs []SceneInput, targetDuration, segmentDuration int) []*models.Scene {
	scenes := make([]*models.Scene, 0, len(inputs))
	start := 0.0
	for i, in := range inputs {
		end := start + float64(segmentDuration)
		if i == len(inputs)-1 || end > float64(targetDuration) {
			end = float64(targetDuration)
		}
		transition := in.TransitionType
		if transition == "" {
			transition = models.TransitionCrossfade
		}
		scenes = append(scenes, &models.Scene{
			VideoRunID:        runID,
			SceneNumber:       i + 1,
			ScenePrompt:       in.ScenePrompt,
			VisualDescription: in.VisualDescription,
			ContinuityNotes:   in.ContinuityNotes,
			NarrationText:     in.NarrationText,
			StartTime:         start,
			EndTime:           end,
			TransitionType:    transition,
		})
		start = end
	}
	return scenes
}

// dispatch runs the orchestrator in the background, releasing the
// processing lock on every exit path (success, failure, or panic).
func (s *VideoService) dispatch(run *models.VideoRun, spec *models.VideoSpec, owner string) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("orchestrator panicked",
				slog.String("run_id", run.ID.String()),
				slog.Any("panic", r),
			)
			run.Status = models.RunStatusFailed
			run.ErrorMessage = fmt.Sprintf("panic: %v", r)
			if uerr := s.runRepo.Update(ctx, run); uerr != nil {
				s.logger.Error("failed to persist panicked run", slog.String("error", uerr.Error()))
			}
		}
		if _, err := s.lockSvc.Release(ctx, lock.Key, owner); err != nil {
			s.logger.Error("failed to release processing lock",
				slog.String("run_id", run.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}()

	orchestrator, err := s.factory.Create(ctx, run, spec)
	if err != nil {
		s.fail(ctx, run, fmt.Errorf("creating orchestrator: %w", err))
		return
	}

	result, err := orchestrator.Execute(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrCancelled) {
			s.fail(ctx, run, errors.New("cancelled"))
			return
		}
		s.fail(ctx, run, err)
		return
	}

	if !result.Success {
		s.fail(ctx, run, errors.New("pipeline completed without success"))
		return
	}

	s.logger.Info("video run completed",
		slog.String("run_id", run.ID.String()),
		slog.Duration("duration", result.Duration),
	)
}

func (s *VideoService) fail(ctx context.Context, run *models.VideoRun, cause error) {
	s.logger.Error("video run failed",
		slog.String("run_id", run.ID.String()),
		slog.String("error", cause.Error()),
	)
	run.Status = models.RunStatusFailed
	run.ErrorMessage = cause.Error()
	if err := s.runRepo.Update(ctx, run); err != nil {
		s.logger.Error("failed to persist failed run", slog.String("error", err.Error()))
	}
}

// GetByID retrieves a run with its scenes and segments preloaded.
func (s *VideoService) GetByID(ctx context.Context, id models.ULID) (*models.VideoRun, error) {
	run, err := s.runRepo.GetByIDWithRelations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting video run: %w", err)
	}
	if run == nil {
		return nil, ErrVideoNotFound
	}
	return run, nil
}

// StatusProjection is the status view returned by GetStatus.
type StatusProjection struct {
	Status            models.RunStatus
	Progress          int
	CurrentPhase      string
	CurrentSegment    int
	SegmentCount      int
	CompletedSegments int
	FailedSegments    int
	ErrorMessage      string
	IsProcessing      bool
}

// GetStatus returns the derived status projection for a run.
func (s *VideoService) GetStatus(ctx context.Context, id models.ULID) (*StatusProjection, error) {
	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting video run: %w", err)
	}
	if run == nil {
		return nil, ErrVideoNotFound
	}

	segments, err := s.runRepo.GetSegmentsByRunID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting segments: %w", err)
	}

	var completed, failed int
	for _, seg := range segments {
		switch seg.Status {
		case models.SegmentStatusCompleted:
			completed++
		case models.SegmentStatusFailed:
			failed++
		}
	}

	return &StatusProjection{
		Status:            run.Status,
		Progress:          run.Progress,
		CurrentPhase:      run.CurrentPhase,
		CurrentSegment:    run.CurrentSegment,
		SegmentCount:      run.SegmentCount,
		CompletedSegments: completed,
		FailedSegments:    failed,
		ErrorMessage:      run.ErrorMessage,
		IsProcessing:      run.IsProcessing(),
	}, nil
}

// SegmentProjection is one entry in the GetSegments response, with a
// derived display progress (completed->100, generating->50, else 0).
type SegmentProjection struct {
	SegmentNumber int
	Status        models.SegmentStatus
	Progress      int
	FilePath      string
	Error         string
	RetryCount    int
}

// GetSegments returns the ordered segment projections for a run.
func (s *VideoService) GetSegments(ctx context.Context, id models.ULID) ([]SegmentProjection, error) {
	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting video run: %w", err)
	}
	if run == nil {
		return nil, ErrVideoNotFound
	}

	segments, err := s.runRepo.GetSegmentsByRunID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting segments: %w", err)
	}

	projections := make([]SegmentProjection, 0, len(segments))
	for _, seg := range segments {
		projections = append(projections, SegmentProjection{
			SegmentNumber: seg.SegmentNumber,
			Status:        seg.Status,
			Progress:      segmentDisplayProgress(seg.Status),
			FilePath:      seg.FilePath,
			Error:         seg.Error,
			RetryCount:    seg.RetryCount,
		})
	}
	return projections, nil
}

func segmentDisplayProgress(status models.SegmentStatus) int {
	switch status {
	case models.SegmentStatusCompleted:
		return 100
	case models.SegmentStatusGenerating:
		return 50
	default:
		return 0
	}
}

// Cancel requests cancellation of a non-terminal run.
func (s *VideoService) Cancel(ctx context.Context, id models.ULID) (bool, error) {
	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return false, fmt.Errorf("getting video run: %w", err)
	}
	if run == nil {
		return false, ErrVideoNotFound
	}
	if run.Status.IsTerminal() {
		return false, nil
	}
	if err := s.runRepo.RequestCancellation(ctx, id); err != nil {
		return false, fmt.Errorf("requesting cancellation: %w", err)
	}
	return true, nil
}

// Delete removes a terminal run's database row and on-disk subtree.
// It refuses when the run is still processing.
func (s *VideoService) Delete(ctx context.Context, id models.ULID) error {
	run, err := s.runRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("getting video run: %w", err)
	}
	if run == nil {
		return ErrVideoNotFound
	}
	if !run.Status.IsTerminal() && run.Status != models.RunStatusPending {
		return ErrVideoNotTerminal
	}
	if err := s.layout.DeleteRunTree(ctx, run.UserID, run.ID); err != nil {
		s.logger.Warn("failed to remove run tree",
			slog.String("run_id", run.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return s.runRepo.Delete(ctx, id)
}

// RecoverAndResume runs the crash-recovery sweep and re-dispatches any
// resumed runs through the orchestrator. Intended to be called once at
// server startup.
func (s *VideoService) RecoverAndResume(ctx context.Context) error {
	resumedIDs, err := s.recovery.RecoverAll(ctx)
	if err != nil {
		return fmt.Errorf("recovering orphaned runs: %w", err)
	}
	for _, id := range resumedIDs {
		run, err := s.runRepo.GetByID(ctx, id)
		if err != nil || run == nil {
			s.logger.Warn("failed to reload resumed run", slog.String("run_id", id.String()))
			continue
		}
		spec, err := s.specRepo.GetByID(ctx, run.SpecID)
		if err != nil || spec == nil {
			s.logger.Warn("failed to reload spec for resumed run", slog.String("run_id", id.String()))
			continue
		}

		owner := lockOwnerPrefix + models.NewULID().String()
		acquired, err := s.lockSvc.Acquire(ctx, lock.Key, owner, lock.Metadata{
			VideoID:        run.ID,
			UserID:         run.UserID,
			TargetDuration: run.TargetDuration,
		}, s.lockTTL)
		if err != nil || !acquired {
			s.logger.Warn("could not reacquire lock for resumed run", slog.String("run_id", id.String()))
			continue
		}
		go s.dispatch(run, spec, owner)
	}
	return nil
}
