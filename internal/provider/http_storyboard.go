package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/jmylchreest/promptvid/internal/httpclient"
	"github.com/jmylchreest/promptvid/internal/models"
)

// LLMStoryboardProvider is a StoryboardProvider backed by an HTTP chat-
// completion style LLM endpoint. It issues one request per operation and
// expects a JSON response body shaped to match the operation's result.
type LLMStoryboardProvider struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
	model   string
}

// NewLLMStoryboardProvider creates an HTTP-backed StoryboardProvider.
func NewLLMStoryboardProvider(client *httpclient.Client, baseURL, apiKey, model string) *LLMStoryboardProvider {
	return &LLMStoryboardProvider{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model}
}

type enhanceRequestBody struct {
	Prompt         string `json:"prompt"`
	TargetDuration int    `json:"targetDuration"`
	Model          string `json:"model"`
}

type enhanceResponseBody struct {
	EnhancedPrompt   string   `json:"enhancedPrompt"`
	Title            string   `json:"title"`
	Keywords         []string `json:"keywords"`
	EstimatedSeconds int      `json:"estimatedDuration"`
}

// Enhance calls the LLM endpoint to expand prompt into a richer prompt and
// title. On any request or decode failure it falls back to the input
// prompt unchanged with a derived title.
func (p *LLMStoryboardProvider) Enhance(ctx context.Context, prompt string, targetDuration int) (EnhanceResult, error) {
	body := enhanceRequestBody{Prompt: prompt, TargetDuration: targetDuration, Model: p.model}
	var resp enhanceResponseBody
	if err := p.post(ctx, "/enhance", body, &resp); err != nil {
		return fallbackEnhance(prompt, targetDuration), nil
	}
	if resp.EnhancedPrompt == "" {
		return fallbackEnhance(prompt, targetDuration), nil
	}
	return EnhanceResult{
		EnhancedPrompt:   resp.EnhancedPrompt,
		Title:            resp.Title,
		Keywords:         resp.Keywords,
		EstimatedSeconds: resp.EstimatedSeconds,
	}, nil
}

func fallbackEnhance(prompt string, targetDuration int) EnhanceResult {
	return EnhanceResult{
		EnhancedPrompt:   prompt,
		Title:            deriveTitle(prompt),
		EstimatedSeconds: targetDuration,
	}
}

func deriveTitle(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "Untitled"
	}
	const maxLen = 60
	if len(trimmed) <= maxLen {
		return trimmed
	}
	return trimmed[:maxLen]
}

type decomposeRequestBody struct {
	Prompt          string `json:"prompt"`
	TargetDuration  int    `json:"targetDuration"`
	SegmentDuration int    `json:"segmentDuration"`
	Model           string `json:"model"`
}

type decomposeResponseBody struct {
	Scenes []struct {
		ScenePrompt       string  `json:"scenePrompt"`
		VisualDescription string  `json:"visualDescription"`
		ContinuityNotes   string  `json:"continuityNotes"`
		NarrationText     string  `json:"narrationText"`
		TransitionType    string  `json:"transitionType"`
		StartTime         float64 `json:"startTime"`
		EndTime           float64 `json:"endTime"`
	} `json:"scenes"`
}

// Decompose calls the LLM endpoint for a scene breakdown. On failure (or an
// empty/malformed result) it returns the fallback decomposition described
// N contiguous crossfade scenes named "<prompt> — Scene i
// of N".
func (p *LLMStoryboardProvider) Decompose(ctx context.Context, prompt string, targetDuration, segmentDuration int) ([]DecomposedScene, error) {
	n := models.ComputeSegmentCount(targetDuration, segmentDuration)

	body := decomposeRequestBody{Prompt: prompt, TargetDuration: targetDuration, SegmentDuration: segmentDuration, Model: p.model}
	var resp decomposeResponseBody
	if err := p.post(ctx, "/decompose", body, &resp); err != nil || len(resp.Scenes) != n {
		return fallbackDecomposition(prompt, n, segmentDuration, targetDuration), nil
	}

	scenes := make([]DecomposedScene, 0, n)
	for i, s := range resp.Scenes {
		transition := models.TransitionCrossfade
		if models.TransitionType(s.TransitionType).IsValid() {
			transition = models.TransitionType(s.TransitionType)
		}
		scenes = append(scenes, DecomposedScene{
			SceneNumber:       i + 1,
			ScenePrompt:       s.ScenePrompt,
			VisualDescription: s.VisualDescription,
			ContinuityNotes:   s.ContinuityNotes,
			NarrationText:     s.NarrationText,
			StartTime:         s.StartTime,
			EndTime:           s.EndTime,
			TransitionType:    transition,
		})
	}
	return scenes, nil
}

// fallbackDecomposition builds the deterministic N-scene breakdown used
// when the LLM is unavailable or returns a malformed result.
func fallbackDecomposition(prompt string, n, segmentDuration, targetDuration int) []DecomposedScene {
	scenes := make([]DecomposedScene, 0, n)
	for i := 1; i <= n; i++ {
		start := float64((i - 1) * segmentDuration)
		end := start + float64(segmentDuration)
		if i == n {
			end = math.Min(end, float64(targetDuration))
		}
		scenes = append(scenes, DecomposedScene{
			SceneNumber:    i,
			ScenePrompt:    fmt.Sprintf("%s — Scene %d of %d", prompt, i, n),
			TransitionType: models.TransitionCrossfade,
			StartTime:      start,
			EndTime:        end,
		})
	}
	return scenes
}

type narrationRequestBody struct {
	Prompt         string   `json:"prompt"`
	Scenes         []string `json:"scenes"`
	TargetDuration int      `json:"targetDuration"`
	Model          string   `json:"model"`
}

type narrationResponseBody struct {
	Script string `json:"script"`
}

// WriteNarration calls the LLM endpoint to produce a narration script. On
// failure it joins each scene's narration text (or scene prompt, if no
// narration text was supplied) with "[SCENE BREAK]" markers.
func (p *LLMStoryboardProvider) WriteNarration(ctx context.Context, prompt string, scenes []DecomposedScene, targetDuration int) (string, error) {
	sceneTexts := make([]string, 0, len(scenes))
	for _, s := range scenes {
		if s.NarrationText != "" {
			sceneTexts = append(sceneTexts, s.NarrationText)
		} else {
			sceneTexts = append(sceneTexts, s.ScenePrompt)
		}
	}

	body := narrationRequestBody{Prompt: prompt, Scenes: sceneTexts, TargetDuration: targetDuration, Model: p.model}
	var resp narrationResponseBody
	if err := p.post(ctx, "/narration", body, &resp); err != nil || resp.Script == "" {
		return strings.Join(sceneTexts, "\n[SCENE BREAK]\n"), nil
	}
	return resp.Script, nil
}

// post issues a JSON POST to path and decodes the response into out.
func (p *LLMStoryboardProvider) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling storyboard provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("storyboard provider returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding storyboard provider response: %w", err)
	}
	return nil
}

// Ensure LLMStoryboardProvider implements StoryboardProvider.
var _ StoryboardProvider = (*LLMStoryboardProvider)(nil)
