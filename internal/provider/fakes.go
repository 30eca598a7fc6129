package provider

import (
	"context"
	"fmt"
	"sync"
)

// FakeStoryboardProvider is an in-memory StoryboardProvider for orchestrator
// tests, following the common pattern of embedding small mock service
// structs directly in test support code rather than a mocking framework.
type FakeStoryboardProvider struct {
	EnhanceFunc        func(ctx context.Context, prompt string, targetDuration int) (EnhanceResult, error)
	DecomposeFunc      func(ctx context.Context, prompt string, targetDuration, segmentDuration int) ([]DecomposedScene, error)
	WriteNarrationFunc func(ctx context.Context, prompt string, scenes []DecomposedScene, targetDuration int) (string, error)
}

func (f *FakeStoryboardProvider) Enhance(ctx context.Context, prompt string, targetDuration int) (EnhanceResult, error) {
	if f.EnhanceFunc != nil {
		return f.EnhanceFunc(ctx, prompt, targetDuration)
	}
	return fallbackEnhance(prompt, targetDuration), nil
}

func (f *FakeStoryboardProvider) Decompose(ctx context.Context, prompt string, targetDuration, segmentDuration int) ([]DecomposedScene, error) {
	if f.DecomposeFunc != nil {
		return f.DecomposeFunc(ctx, prompt, targetDuration, segmentDuration)
	}
	n := targetDuration / segmentDuration
	if targetDuration%segmentDuration != 0 {
		n++
	}
	return fallbackDecomposition(prompt, n, segmentDuration, targetDuration), nil
}

func (f *FakeStoryboardProvider) WriteNarration(ctx context.Context, prompt string, scenes []DecomposedScene, targetDuration int) (string, error) {
	if f.WriteNarrationFunc != nil {
		return f.WriteNarrationFunc(ctx, prompt, scenes, targetDuration)
	}
	script := ""
	for i, s := range scenes {
		if i > 0 {
			script += "\n[SCENE BREAK]\n"
		}
		script += s.ScenePrompt
	}
	return script, nil
}

var _ StoryboardProvider = (*FakeStoryboardProvider)(nil)

// FakeVideoSegmentProvider is an in-memory VideoSegmentProvider that
// completes every job instantly with a deterministic placeholder payload,
// useful for orchestrator tests that don't exercise real generation.
type FakeVideoSegmentProvider struct {
	mu       sync.Mutex
	jobs     map[string]PollResult
	content  map[string][]byte
	nextID   int
	FailNext bool
}

// NewFakeVideoSegmentProvider creates an empty FakeVideoSegmentProvider.
func NewFakeVideoSegmentProvider() *FakeVideoSegmentProvider {
	return &FakeVideoSegmentProvider{
		jobs:    make(map[string]PollResult),
		content: make(map[string][]byte),
	}
}

func (f *FakeVideoSegmentProvider) Start(ctx context.Context, scenePrompt string, width, height, nSeconds int, continuityHint []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	jobID := fmt.Sprintf("fake-job-%d", f.nextID)
	genID := fmt.Sprintf("fake-gen-%d", f.nextID)

	if f.FailNext {
		f.FailNext = false
		f.jobs[jobID] = PollResult{State: JobStateFailed, Error: "simulated failure"}
		return jobID, nil
	}

	f.jobs[jobID] = PollResult{State: JobStateSucceeded, GenerationIDs: []string{genID}}
	f.content[genID] = []byte(fmt.Sprintf("fake-video-content:%s", scenePrompt))
	return jobID, nil
}

func (f *FakeVideoSegmentProvider) Poll(ctx context.Context, jobID string) (PollResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result, ok := f.jobs[jobID]
	if !ok {
		return PollResult{}, fmt.Errorf("unknown job id %q", jobID)
	}
	return result, nil
}

func (f *FakeVideoSegmentProvider) FetchContent(ctx context.Context, generationID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.content[generationID]
	if !ok {
		return nil, fmt.Errorf("unknown generation id %q", generationID)
	}
	return data, nil
}

var _ VideoSegmentProvider = (*FakeVideoSegmentProvider)(nil)

// FakeNarrationProvider is an in-memory NarrationProvider returning a fixed
// placeholder payload.
type FakeNarrationProvider struct {
	SynthesizeFunc func(ctx context.Context, script, voiceID, model string, settings VoiceSettings) ([]byte, error)
}

func (f *FakeNarrationProvider) Synthesize(ctx context.Context, script, voiceID, model string, settings VoiceSettings) ([]byte, error) {
	if f.SynthesizeFunc != nil {
		return f.SynthesizeFunc(ctx, script, voiceID, model, settings)
	}
	return []byte(fmt.Sprintf("fake-audio:%s", voiceID)), nil
}

var _ NarrationProvider = (*FakeNarrationProvider)(nil)
