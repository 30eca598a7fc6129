package core

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrNoStoryboard indicates decomposing produced no scenes.
	ErrNoStoryboard = errors.New("no scenes in storyboard")

	// ErrNoSegments indicates no segments were generated.
	ErrNoSegments = errors.New("no segments generated")

	// ErrPipelineAlreadyRunning indicates a pipeline is already executing for this run.
	ErrPipelineAlreadyRunning = errors.New("pipeline already running for this video run")

	// ErrStageNotFound indicates a requested stage was not found.
	ErrStageNotFound = errors.New("stage not found")

	// ErrInvalidConfiguration indicates invalid pipeline configuration.
	ErrInvalidConfiguration = errors.New("invalid pipeline configuration")

	// ErrCancelled indicates the run's cancellation flag was observed
	// between phases or between segments; the caller should record
	// errorMessage "cancelled" rather than the generic failure path.
	ErrCancelled = errors.New("cancelled")
)

// StageError wraps an error with stage context.
type StageError struct {
	StageID   string
	StageName string
	Err       error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s): %v", e.StageName, e.StageID, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stageID, stageName string, err error) *StageError {
	return &StageError{
		StageID:   stageID,
		StageName: stageName,
		Err:       err,
	}
}

// ConfigurationError represents a configuration problem.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Message: message,
	}
}
