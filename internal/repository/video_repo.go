package repository

import (
	"context"
	"fmt"

	"github.com/jmylchreest/promptvid/internal/models"
	"gorm.io/gorm"
)

// videoSpecRepo implements VideoSpecRepository using GORM.
type videoSpecRepo struct {
	db *gorm.DB
}

// NewVideoSpecRepository creates a new VideoSpecRepository.
func NewVideoSpecRepository(db *gorm.DB) *videoSpecRepo {
	return &videoSpecRepo{db: db}
}

// Create persists a new VideoSpec.
func (r *videoSpecRepo) Create(ctx context.Context, spec *models.VideoSpec) error {
	if err := r.db.WithContext(ctx).Create(spec).Error; err != nil {
		return fmt.Errorf("creating video spec: %w", err)
	}
	return nil
}

// GetByID retrieves a VideoSpec by ID.
func (r *videoSpecRepo) GetByID(ctx context.Context, id models.ULID) (*models.VideoSpec, error) {
	var spec models.VideoSpec
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&spec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video spec by ID: %w", err)
	}
	return &spec, nil
}

// Ensure videoSpecRepo implements VideoSpecRepository at compile time.
var _ VideoSpecRepository = (*videoSpecRepo)(nil)

// videoRunRepo implements VideoRunRepository using GORM.
type videoRunRepo struct {
	db *gorm.DB
}

// NewVideoRunRepository creates a new VideoRunRepository.
func NewVideoRunRepository(db *gorm.DB) *videoRunRepo {
	return &videoRunRepo{db: db}
}

// Create persists a new VideoRun.
func (r *videoRunRepo) Create(ctx context.Context, run *models.VideoRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating video run: %w", err)
	}
	return nil
}

// GetByID retrieves a VideoRun by ID, without its child scenes/segments.
func (r *videoRunRepo) GetByID(ctx context.Context, id models.ULID) (*models.VideoRun, error) {
	var run models.VideoRun
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video run by ID: %w", err)
	}
	return &run, nil
}

// GetByIDWithRelations retrieves a VideoRun with Scenes and Segments preloaded.
func (r *videoRunRepo) GetByIDWithRelations(ctx context.Context, id models.ULID) (*models.VideoRun, error) {
	var run models.VideoRun
	err := r.db.WithContext(ctx).
		Preload("Scenes", func(tx *gorm.DB) *gorm.DB { return tx.Order("scene_number ASC") }).
		Preload("Segments", func(tx *gorm.DB) *gorm.DB { return tx.Order("segment_number ASC") }).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting video run with relations: %w", err)
	}
	return &run, nil
}

// GetByUserID retrieves a user's runs newest-first, paginated.
func (r *videoRunRepo) GetByUserID(ctx context.Context, userID string, offset, limit int) ([]*models.VideoRun, int64, error) {
	var runs []*models.VideoRun
	var total int64

	query := r.db.WithContext(ctx).Model(&models.VideoRun{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting video runs: %w", err)
	}

	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("getting video runs by user ID: %w", err)
	}
	return runs, total, nil
}

// Update persists all mutable fields of an existing VideoRun.
func (r *videoRunRepo) Update(ctx context.Context, run *models.VideoRun) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("updating video run: %w", err)
	}
	return nil
}

// UpdateProgress atomically updates the phase/progress/current-segment columns only.
func (r *videoRunRepo) UpdateProgress(ctx context.Context, id models.ULID, phase models.RunStatus, progress, currentSegment int) error {
	result := r.db.WithContext(ctx).Model(&models.VideoRun{}).Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":          phase,
			"current_phase":   string(phase),
			"progress":        progress,
			"current_segment": currentSegment,
		})
	if result.Error != nil {
		return fmt.Errorf("updating video run progress: %w", result.Error)
	}
	return nil
}

// Delete removes a VideoRun and its child scenes/segments.
func (r *videoRunRepo) Delete(ctx context.Context, id models.ULID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_run_id = ?", id).Delete(&models.Segment{}).Error; err != nil {
			return fmt.Errorf("deleting segments: %w", err)
		}
		if err := tx.Where("video_run_id = ?", id).Delete(&models.Scene{}).Error; err != nil {
			return fmt.Errorf("deleting scenes: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.VideoRun{}).Error; err != nil {
			return fmt.Errorf("deleting video run: %w", err)
		}
		return nil
	})
}

// GetActive retrieves all runs not yet in a terminal state, for the recovery sweep.
func (r *videoRunRepo) GetActive(ctx context.Context) ([]*models.VideoRun, error) {
	var runs []*models.VideoRun
	if err := r.db.WithContext(ctx).
		Where("status NOT IN (?, ?)", models.RunStatusCompleted, models.RunStatusFailed).
		Order("created_at ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting active video runs: %w", err)
	}
	return runs, nil
}

// RequestCancellation sets the cancel-requested flag on a run.
func (r *videoRunRepo) RequestCancellation(ctx context.Context, id models.ULID) error {
	result := r.db.WithContext(ctx).Model(&models.VideoRun{}).Where("id = ?", id).
		UpdateColumn("cancel_requested", true)
	if result.Error != nil {
		return fmt.Errorf("requesting video run cancellation: %w", result.Error)
	}
	return nil
}

// CreateScenes persists the storyboard scenes produced during decomposition.
func (r *videoRunRepo) CreateScenes(ctx context.Context, scenes []*models.Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(scenes).Error; err != nil {
		return fmt.Errorf("creating scenes: %w", err)
	}
	return nil
}

// GetScenesByRunID retrieves a run's scenes ordered by scene_number.
func (r *videoRunRepo) GetScenesByRunID(ctx context.Context, runID models.ULID) ([]*models.Scene, error) {
	var scenes []*models.Scene
	if err := r.db.WithContext(ctx).Where("video_run_id = ?", runID).Order("scene_number ASC").Find(&scenes).Error; err != nil {
		return nil, fmt.Errorf("getting scenes by run ID: %w", err)
	}
	return scenes, nil
}

// CreateSegments persists the initial (pending) segment rows for a run.
func (r *videoRunRepo) CreateSegments(ctx context.Context, segments []*models.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(segments).Error; err != nil {
		return fmt.Errorf("creating segments: %w", err)
	}
	return nil
}

// GetSegmentsByRunID retrieves a run's segments ordered by segment_number.
func (r *videoRunRepo) GetSegmentsByRunID(ctx context.Context, runID models.ULID) ([]*models.Segment, error) {
	var segments []*models.Segment
	if err := r.db.WithContext(ctx).Where("video_run_id = ?", runID).Order("segment_number ASC").Find(&segments).Error; err != nil {
		return nil, fmt.Errorf("getting segments by run ID: %w", err)
	}
	return segments, nil
}

// GetSegment retrieves a single segment by run ID and segment number.
func (r *videoRunRepo) GetSegment(ctx context.Context, runID models.ULID, segmentNumber int) (*models.Segment, error) {
	var segment models.Segment
	err := r.db.WithContext(ctx).
		Where("video_run_id = ? AND segment_number = ?", runID, segmentNumber).
		First(&segment).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting segment: %w", err)
	}
	return &segment, nil
}

// UpdateSegment persists all mutable fields of an existing segment.
func (r *videoRunRepo) UpdateSegment(ctx context.Context, segment *models.Segment) error {
	if err := r.db.WithContext(ctx).Save(segment).Error; err != nil {
		return fmt.Errorf("updating segment: %w", err)
	}
	return nil
}

// Ensure videoRunRepo implements VideoRunRepository at compile time.
var _ VideoRunRepository = (*videoRunRepo)(nil)
