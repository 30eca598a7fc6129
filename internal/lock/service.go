// Package lock implements the global exclusive processing lock described in
// the orchestrator design: at most one video run may be actively processing
// at a time, enforced by a single named lock row in the store. Acquire is a
// compare-and-set with no read-then-write window; release, extend and sweep
// build on top of it.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/repository"
)

// Key is the single global lock key the orchestrator serializes on. The
// design allows for multiple keys (e.g. per-tenant locking) but the current
// deployment model runs one orchestrator worker, so a single well-known key
// is sufficient.
const Key = "orchestrator"

// DefaultTimeout is the lock hold time granted by Acquire absent an
// explicit override; it matches the video-wide processing timeout.
const DefaultTimeout = 30 * time.Minute

// Metadata describes the work a lock holder is performing, surfaced via
// Status for /system/status and debugging.
type Metadata struct {
	VideoID             models.ULID
	UserID              string
	TargetDuration      int
	EstimatedCompletion time.Time
}

// Status is the current observed state of a lock key.
type Status struct {
	Locked    bool
	Owner     string
	LockedAt  time.Time
	ExpiresAt time.Time
	Metadata  Metadata
}

// Service implements acquire/release/extend/status/sweep over a
// ProcessingLockRepository.
type Service struct {
	repo repository.ProcessingLockRepository
}

// New creates a Service backed by repo.
func New(repo repository.ProcessingLockRepository) *Service {
	return &Service{repo: repo}
}

// Acquire attempts to claim key for owner for timeout, returning true if
// this call won the lock. Acquire never blocks: on contention it returns
// false immediately so the caller can refuse the work (a busy 503).
func (s *Service) Acquire(ctx context.Context, key, owner string, meta Metadata, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	expiresAt := time.Now().Add(timeout)
	estimated := meta.EstimatedCompletion
	if estimated.IsZero() {
		estimated = expiresAt
	}
	won, err := s.repo.Acquire(ctx, key, owner, expiresAt, meta.VideoID, meta.UserID, meta.TargetDuration, estimated)
	if err != nil {
		return false, fmt.Errorf("acquiring lock %q: %w", key, err)
	}
	return won, nil
}

// Release clears the lock only if it is currently held by owner. Ownership
// is checked at the repository layer (a release call naming the wrong owner
// is a no-op and leaves the lock held); no row is cleared by key alone: the only
// caller able to invoke release for a key is the orchestrator instance that
// acquired it, so the extra guard costs nothing and prevents a stray or
// delayed release call from clearing a different instance's active lock.
func (s *Service) Release(ctx context.Context, key, owner string) (bool, error) {
	released, err := s.repo.Release(ctx, key, owner)
	if err != nil {
		return false, fmt.Errorf("releasing lock %q: %w", key, err)
	}
	return released, nil
}

// Extend pushes the lock's expiry out by delta, provided owner currently
// holds it. Used as a heartbeat by long-running phases.
func (s *Service) Extend(ctx context.Context, key, owner string, delta time.Duration) (bool, error) {
	newExpiresAt := time.Now().Add(delta)
	extended, err := s.repo.Extend(ctx, key, owner, newExpiresAt)
	if err != nil {
		return false, fmt.Errorf("extending lock %q: %w", key, err)
	}
	return extended, nil
}

// Status reports the current state of key, lazily clearing it first if it
// is held but already expired.
func (s *Service) Status(ctx context.Context, key string) (Status, error) {
	now := time.Now()
	row, err := s.repo.Get(ctx, key)
	if err != nil {
		return Status{}, fmt.Errorf("getting lock %q status: %w", key, err)
	}
	if row.IsLocked && row.ExpiresAt != nil && row.ExpiresAt.Before(now) {
		if _, err := s.repo.SweepExpired(ctx, now); err != nil {
			return Status{}, fmt.Errorf("lazily sweeping expired lock %q: %w", key, err)
		}
		row, err = s.repo.Get(ctx, key)
		if err != nil {
			return Status{}, fmt.Errorf("re-getting lock %q status after sweep: %w", key, err)
		}
	}

	status := Status{
		Locked: row.IsLocked,
		Owner:  row.LockedBy,
		Metadata: Metadata{
			VideoID:        row.VideoID,
			UserID:         row.UserID,
			TargetDuration: row.TargetDuration,
		},
	}
	if row.LockedAt != nil {
		status.LockedAt = *row.LockedAt
	}
	if row.ExpiresAt != nil {
		status.ExpiresAt = *row.ExpiresAt
	}
	if row.EstimatedCompletion != nil {
		status.Metadata.EstimatedCompletion = *row.EstimatedCompletion
	}
	return status, nil
}

// Sweep bulk-clears all expired lock rows, returning how many were
// released. Intended to be called periodically by the maintenance
// scheduler as well as lazily from Status.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	count, err := s.repo.SweepExpired(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("sweeping expired locks: %w", err)
	}
	return count, nil
}
