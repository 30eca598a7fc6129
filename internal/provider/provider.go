// Package provider defines the three external capability interfaces the
// processing orchestrator depends on — storyboard decomposition, text-to-
// video segment generation, and narration synthesis — plus HTTP-backed
// implementations and in-memory fakes for tests. The orchestrator only ever
// sees these interfaces; it never couples to wire details.
package provider

import (
	"context"

	"github.com/jmylchreest/promptvid/internal/models"
)

// JobState is the lifecycle state of an in-flight segment generation job as
// reported by VideoSegmentProvider.Poll.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// EnhanceResult is the output of StoryboardProvider.Enhance.
type EnhanceResult struct {
	EnhancedPrompt   string
	Title            string
	Keywords         []string
	EstimatedSeconds int
}

// DecomposedScene is one scene produced by StoryboardProvider.Decompose,
// mirroring the persisted Scene model's content fields.
type DecomposedScene struct {
	SceneNumber       int
	ScenePrompt       string
	VisualDescription string
	ContinuityNotes   string
	NarrationText     string
	StartTime         float64
	EndTime           float64
	TransitionType    models.TransitionType
}

// StoryboardProvider turns a user prompt into an enhanced prompt, an ordered
// scene breakdown, and a narration script.
type StoryboardProvider interface {
	// Enhance expands a raw prompt into a richer prompt plus a derived
	// title. On failure callers should fall back to the input prompt
	// unchanged with a title derived from it.
	Enhance(ctx context.Context, prompt string, targetDuration int) (EnhanceResult, error)

	// Decompose splits prompt into N = ceil(targetDuration/segmentDuration)
	// ordered scenes with contiguous [startTime,endTime) ranges.
	Decompose(ctx context.Context, prompt string, targetDuration, segmentDuration int) ([]DecomposedScene, error)

	// WriteNarration produces a narration script containing "[SCENE BREAK]"
	// markers between scenes.
	WriteNarration(ctx context.Context, prompt string, scenes []DecomposedScene, targetDuration int) (string, error)
}

// PollResult is the result of VideoSegmentProvider.Poll.
type PollResult struct {
	State         JobState
	GenerationIDs []string
	Error         string
}

// VideoSegmentProvider generates a single video segment from a scene prompt
// via an asynchronous start/poll/fetch lifecycle.
type VideoSegmentProvider interface {
	// Start begins generation of an nSeconds clip at width x height for
	// scenePrompt, optionally anchored to a continuity hint (e.g. the last
	// frame of the previous segment), returning a provider job ID.
	Start(ctx context.Context, scenePrompt string, width, height, nSeconds int, continuityHint []byte) (jobID string, err error)

	// Poll reports the current state of a previously started job.
	Poll(ctx context.Context, jobID string) (PollResult, error)

	// FetchContent retrieves the generated bytes for a completed
	// generation.
	FetchContent(ctx context.Context, generationID string) ([]byte, error)
}

// VoiceSettings configures narration synthesis tone/style; fields are
// provider-specific and passed through opaquely.
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
}

// NarrationProvider synthesizes narration audio from a script.
type NarrationProvider interface {
	// Synthesize renders script to MP3 bytes using voiceID and model.
	Synthesize(ctx context.Context, script, voiceID, model string, settings VoiceSettings) ([]byte, error)
}

// EstimateNarrationDuration estimates spoken duration in seconds from a
// narration script at a nominal 2.5 words per second: ceil(words/2.5).
func EstimateNarrationDuration(text string) int {
	words := countWords(text)
	seconds := (words*2 + 4) / 5 // ceil(words/2.5) == ceil(2*words/5), integer-exact
	if seconds < 1 {
		return 1
	}
	return seconds
}

func countWords(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if isSpace {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
