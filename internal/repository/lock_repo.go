package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/promptvid/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// clauseOnConflictDoNothing returns a clause that makes Create a no-op when
// the primary key already exists, instead of returning a duplicate-key error.
func clauseOnConflictDoNothing() clause.OnConflict {
	return clause.OnConflict{DoNothing: true}
}

// lockRepo implements ProcessingLockRepository using GORM. Acquire is
// implemented as a single atomic UPDATE guarded by a WHERE clause that only
// matches unlocked-or-expired rows, the same compare-and-set pattern used by
// the job queue's SQLite job acquisition. This avoids a SELECT-then-UPDATE
// race: concurrent callers racing the same key all issue the UPDATE, and the
// database's own write serialization ensures only one of them affects a row.
type lockRepo struct {
	db *gorm.DB
}

// NewProcessingLockRepository creates a new ProcessingLockRepository.
func NewProcessingLockRepository(db *gorm.DB) *lockRepo {
	return &lockRepo{db: db}
}

// Acquire attempts to atomically claim the lock row for key.
func (r *lockRepo) Acquire(ctx context.Context, key, owner string, expiresAt time.Time, videoID models.ULID, userID string, targetDuration int, estimatedCompletion time.Time) (bool, error) {
	if err := r.ensureRow(ctx, key); err != nil {
		return false, err
	}

	now := time.Now()
	nowTime := models.Now()
	lockedAt := nowTime
	expires := models.Time(expiresAt)
	estimated := models.Time(estimatedCompletion)

	result := r.db.WithContext(ctx).Model(&models.ProcessingLock{}).
		Where("key = ? AND (is_locked = ? OR expires_at < ?)", key, false, now).
		UpdateColumns(map[string]any{
			"is_locked":            true,
			"locked_by":            owner,
			"locked_at":            lockedAt,
			"expires_at":           expires,
			"video_id":             videoID,
			"user_id":              userID,
			"target_duration":      targetDuration,
			"estimated_completion": estimated,
			"updated_at":           nowTime,
		})
	if result.Error != nil {
		return false, fmt.Errorf("acquiring processing lock: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Release clears the lock if and only if it is currently held by owner.
func (r *lockRepo) Release(ctx context.Context, key, owner string) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.ProcessingLock{}).
		Where("key = ? AND is_locked = ? AND locked_by = ?", key, true, owner).
		UpdateColumns(map[string]any{
			"is_locked":  false,
			"locked_by":  "",
			"locked_at":  nil,
			"expires_at": nil,
			"updated_at": models.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("releasing processing lock: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Extend pushes out the expiry of a lock currently held by owner.
func (r *lockRepo) Extend(ctx context.Context, key, owner string, newExpiresAt time.Time) (bool, error) {
	expires := models.Time(newExpiresAt)
	result := r.db.WithContext(ctx).Model(&models.ProcessingLock{}).
		Where("key = ? AND is_locked = ? AND locked_by = ?", key, true, owner).
		UpdateColumns(map[string]any{
			"expires_at": expires,
			"updated_at": models.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("extending processing lock: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Get retrieves the current state of the lock row, creating an unlocked row
// if none exists yet.
func (r *lockRepo) Get(ctx context.Context, key string) (*models.ProcessingLock, error) {
	if err := r.ensureRow(ctx, key); err != nil {
		return nil, err
	}
	var lock models.ProcessingLock
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&lock).Error; err != nil {
		return nil, fmt.Errorf("getting processing lock: %w", err)
	}
	return &lock, nil
}

// SweepExpired releases any lock rows whose expiry has passed.
func (r *lockRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.ProcessingLock{}).
		Where("is_locked = ? AND expires_at < ?", true, now).
		UpdateColumns(map[string]any{
			"is_locked":  false,
			"locked_by":  "",
			"locked_at":  nil,
			"expires_at": nil,
			"updated_at": models.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("sweeping expired processing locks: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ensureRow creates the lock row for key, unlocked, if it doesn't already exist.
func (r *lockRepo) ensureRow(ctx context.Context, key string) error {
	now := models.Now()
	lock := models.ProcessingLock{Key: key, IsLocked: false, CreatedAt: now, UpdatedAt: now}
	err := r.db.WithContext(ctx).
		Clauses(clauseOnConflictDoNothing()).
		Create(&lock).Error
	if err != nil {
		return fmt.Errorf("ensuring processing lock row: %w", err)
	}
	return nil
}

// Ensure lockRepo implements ProcessingLockRepository at compile time.
var _ ProcessingLockRepository = (*lockRepo)(nil)
