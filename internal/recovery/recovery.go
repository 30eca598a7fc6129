// Package recovery implements the crash-recovery decision table: given the
// last persisted status of a VideoRun and what is actually on disk, decide
// whether the run can resume (and from where) or must be marked failed.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/storage"
)

// OrphanAge is how long a non-terminal VideoRun may go untouched before the
// periodic sweep treats it as an interrupted orphan.
const OrphanAge = 30 * time.Minute

// ReasonInterrupted is the errorMessage recorded when an orphaned run is
// marked failed instead of resumed.
const ReasonInterrupted = "processing interrupted"

// Decision describes how a recoverable VideoRun should be re-dispatched.
type Decision struct {
	// Resumable is false when the run is not a recovery candidate at all
	// (it was already terminal, pending or decomposing).
	Resumable bool

	// Status is the status the run should be persisted with before
	// re-dispatch.
	Status models.RunStatus

	// CurrentSegment is the 1-indexed segment to resume generating from,
	// meaningful only when Status is RunStatusGenerating.
	CurrentSegment int

	// ClearError indicates errorMessage should be cleared.
	ClearError bool
}

// Plan inspects run against the segments and on-disk files storage reports
// and returns the resulting Decision. It never mutates run;
// callers apply the returned Decision themselves (Service.Recover does).
func Plan(ctx context.Context, run *models.VideoRun, segments []*models.Segment, layout *storage.Layout) (Decision, error) {
	switch run.Status {
	case models.RunStatusGenerating:
		return planGenerating(segments), nil

	case models.RunStatusStitching:
		existing, err := layout.ExistingSegmentPaths(run.UserID, run.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("listing existing segments for run %s: %w", run.ID, err)
		}
		if len(existing) == run.SegmentCount {
			return Decision{Resumable: true, Status: models.RunStatusStitching, ClearError: true}, nil
		}
		return planGenerating(segments), nil

	case models.RunStatusAudio, models.RunStatusMerging, models.RunStatusTranscoding:
		stitchedRel := layout.StitchedPath(run.UserID, run.ID)
		exists, err := layout.Exists(stitchedRel)
		if err != nil {
			return Decision{}, fmt.Errorf("checking stitched file for run %s: %w", run.ID, err)
		}
		if exists {
			return Decision{Resumable: true, Status: models.RunStatusAudio, ClearError: true}, nil
		}
		existing, err := layout.ExistingSegmentPaths(run.UserID, run.ID)
		if err != nil {
			return Decision{}, fmt.Errorf("listing existing segments for run %s: %w", run.ID, err)
		}
		if len(existing) == run.SegmentCount {
			return Decision{Resumable: true, Status: models.RunStatusStitching, ClearError: true}, nil
		}
		return planGenerating(segments), nil

	case models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusPending, models.RunStatusDecomposing:
		return Decision{Resumable: false}, nil

	default:
		return Decision{Resumable: false}, nil
	}
}

// planGenerating implements the `generating` row of the table: find the
// largest completed prefix of segments (ordered by segmentNumber) and
// resume one past it.
func planGenerating(segments []*models.Segment) Decision {
	prefix := 0
	for _, seg := range segments {
		if seg.SegmentNumber != prefix+1 {
			break
		}
		if seg.Status != models.SegmentStatusCompleted {
			break
		}
		prefix++
	}
	return Decision{
		Resumable:      true,
		Status:         models.RunStatusGenerating,
		CurrentSegment: prefix + 1,
		ClearError:     true,
	}
}

// Service drives the recovery decision table against the repository layer,
// both for startup recovery and the periodic orphan sweep.
type Service struct {
	runs   repository.VideoRunRepository
	layout *storage.Layout
	logger *slog.Logger
}

// New creates a recovery Service.
func New(runs repository.VideoRunRepository, layout *storage.Layout, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, layout: layout, logger: logger}
}

// RecoverAll inspects every active (non-terminal) VideoRun and applies the
// decision table, persisting either a resumable status or a failed
// "processing interrupted" terminal state. It returns the IDs that were
// marked resumable so the caller can re-dispatch them to the orchestrator.
func (s *Service) RecoverAll(ctx context.Context) ([]models.ULID, error) {
	active, err := s.runs.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing active video runs: %w", err)
	}

	var resumed []models.ULID
	for _, run := range active {
		if run.Status == models.RunStatusPending || run.Status == models.RunStatusDecomposing {
			// Nothing was persisted mid-phase; safe to resume from scratch.
			resumed = append(resumed, run.ID)
			continue
		}

		segments, err := s.runs.GetSegmentsByRunID(ctx, run.ID)
		if err != nil {
			return resumed, fmt.Errorf("listing segments for run %s: %w", run.ID, err)
		}

		decision, err := Plan(ctx, run, segments, s.layout)
		if err != nil {
			return resumed, fmt.Errorf("planning recovery for run %s: %w", run.ID, err)
		}

		if !decision.Resumable {
			if err := s.fail(ctx, run); err != nil {
				return resumed, err
			}
			continue
		}

		run.Status = decision.Status
		run.CurrentPhase = string(decision.Status)
		if decision.Status == models.RunStatusGenerating {
			run.CurrentSegment = decision.CurrentSegment
		}
		if decision.ClearError {
			run.ErrorMessage = ""
		}
		if err := s.runs.Update(ctx, run); err != nil {
			return resumed, fmt.Errorf("persisting recovered run %s: %w", run.ID, err)
		}

		s.logger.InfoContext(ctx, "recovered video run",
			slog.String("run_id", run.ID.String()),
			slog.String("status", string(run.Status)),
			slog.Int("current_segment", run.CurrentSegment),
		)
		resumed = append(resumed, run.ID)
	}
	return resumed, nil
}

// SweepOrphans marks any non-terminal VideoRun untouched for longer than
// OrphanAge as failed with ReasonInterrupted, per the simplest-implementation
// option. It is intended to be invoked by the periodic
// recovery-sweep maintenance job, distinct from the startup RecoverAll pass.
func (s *Service) SweepOrphans(ctx context.Context) (int, error) {
	active, err := s.runs.GetActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active video runs: %w", err)
	}

	cutoff := time.Now().Add(-OrphanAge)
	var swept int
	for _, run := range active {
		if run.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.fail(ctx, run); err != nil {
			return swept, err
		}
		swept++
	}
	return swept, nil
}

func (s *Service) fail(ctx context.Context, run *models.VideoRun) error {
	priorStatus := run.Status
	run.Status = models.RunStatusFailed
	run.ErrorMessage = ReasonInterrupted
	if err := s.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("marking run %s failed after interrupted recovery: %w", run.ID, err)
	}
	s.logger.WarnContext(ctx, "video run not recoverable, marked failed",
		slog.String("run_id", run.ID.String()),
		slog.String("prior_status", string(priorStatus)),
	)
	return nil
}
