package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for models.
var (
	// ErrPromptRequired indicates the original prompt was empty.
	ErrPromptRequired = errors.New("original_prompt is required")

	// ErrTargetDurationOutOfRange indicates target_duration fell outside [5, 120] seconds.
	ErrTargetDurationOutOfRange = errors.New("target_duration must be between 5 and 120 seconds")

	// ErrScenePromptTooLong indicates scene_prompt exceeded 2000 characters.
	ErrScenePromptTooLong = errors.New("scene_prompt must be at most 2000 characters")

	// ErrNarrationTooLong indicates narration_text exceeded 500 characters.
	ErrNarrationTooLong = errors.New("narration_text must be at most 500 characters")

	// ErrInvalidTransitionType indicates an unrecognized scene transition type.
	ErrInvalidTransitionType = errors.New("transition_type must be 'crossfade' or 'cut'")

	// ErrInvalidSceneTimeRange indicates a scene's end_time did not exceed start_time.
	ErrInvalidSceneTimeRange = errors.New("scene end_time must be after start_time")

	// ErrVideoRunIDRequired indicates a required video_run_id field is zero.
	ErrVideoRunIDRequired = errors.New("video_run_id is required")

	// ErrUserIDRequired indicates a required user_id field is empty.
	ErrUserIDRequired = errors.New("user_id is required")

	// ErrInvalidSegmentStatus indicates an unrecognized segment status.
	ErrInvalidSegmentStatus = errors.New("invalid segment status")

	// ErrInvalidVideoRunStatus indicates an unrecognized video run status.
	ErrInvalidVideoRunStatus = errors.New("invalid video run status")

	// ErrProgressOutOfRange indicates progress fell outside [0, 100].
	ErrProgressOutOfRange = errors.New("progress must be between 0 and 100")

	// ErrLockKeyRequired indicates a required processing lock key was empty.
	ErrLockKeyRequired = errors.New("lock key is required")

	// ErrLockOwnerRequired indicates a required processing lock owner was empty.
	ErrLockOwnerRequired = errors.New("lock owner is required")

	// ErrCacheHashRequired indicates a required cache entry hash was empty.
	ErrCacheHashRequired = errors.New("cache entry hash is required")

	// ErrJobTypeRequired indicates a maintenance job was created without a type.
	ErrJobTypeRequired = errors.New("job type is required")
)
