package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/promptvid/internal/provider"
)

// PromptHandler exposes thin passthroughs to the configured
// StoryboardProvider, letting clients preview prompt enhancement and scene
// decomposition without submitting a full video request.
type PromptHandler struct {
	storyboard provider.StoryboardProvider
}

// NewPromptHandler creates a new prompt handler.
func NewPromptHandler(storyboard provider.StoryboardProvider) *PromptHandler {
	return &PromptHandler{storyboard: storyboard}
}

// Register registers the prompt routes with the API.
func (h *PromptHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "enhancePrompt",
		Method:      "POST",
		Path:        "/api/v1/prompts/enhance",
		Summary:     "Enhance a prompt",
		Description: "Expands a raw prompt into a richer prompt plus a derived title",
		Tags:        []string{"Prompts"},
	}, h.Enhance)

	huma.Register(api, huma.Operation{
		OperationID: "decomposePrompt",
		Method:      "POST",
		Path:        "/api/v1/prompts/decompose",
		Summary:     "Decompose a prompt",
		Description: "Splits a prompt into an ordered scene breakdown",
		Tags:        []string{"Prompts"},
	}, h.Decompose)
}

// EnhancePromptRequest is the request body for enhancing a prompt.
type EnhancePromptRequest struct {
	Prompt         string `json:"prompt" doc:"The prompt to enhance" required:"true"`
	TargetDuration int    `json:"targetDuration" doc:"Target duration in seconds" minimum:"5" maximum:"120" required:"true"`
}

// EnhancePromptInput is the input for enhancing a prompt.
type EnhancePromptInput struct {
	Body EnhancePromptRequest
}

// EnhancePromptResponse is the response body for enhancing a prompt.
type EnhancePromptResponse struct {
	EnhancedPrompt   string   `json:"enhancedPrompt"`
	Title            string   `json:"title,omitempty"`
	Keywords         []string `json:"keywords,omitempty"`
	EstimatedSeconds int      `json:"estimatedSeconds,omitempty"`
}

// EnhancePromptOutput is the output for enhancing a prompt.
type EnhancePromptOutput struct {
	Body EnhancePromptResponse
}

// Enhance expands a raw prompt via the storyboard provider.
func (h *PromptHandler) Enhance(ctx context.Context, input *EnhancePromptInput) (*EnhancePromptOutput, error) {
	result, err := h.storyboard.Enhance(ctx, input.Body.Prompt, input.Body.TargetDuration)
	if err != nil {
		return nil, huma.Error502BadGateway("failed to enhance prompt", err)
	}

	return &EnhancePromptOutput{
		Body: EnhancePromptResponse{
			EnhancedPrompt:   result.EnhancedPrompt,
			Title:            result.Title,
			Keywords:         result.Keywords,
			EstimatedSeconds: result.EstimatedSeconds,
		},
	}, nil
}

// DecomposePromptRequest is the request body for decomposing a prompt.
type DecomposePromptRequest struct {
	Prompt          string `json:"prompt" doc:"The prompt to decompose" required:"true"`
	TargetDuration  int    `json:"targetDuration" doc:"Target duration in seconds" minimum:"5" maximum:"120" required:"true"`
	SegmentDuration int    `json:"segmentDuration,omitempty" doc:"Segment duration in seconds (default 12)"`
}

// DecomposePromptInput is the input for decomposing a prompt.
type DecomposePromptInput struct {
	Body DecomposePromptRequest
}

// SceneResponse is one decomposed scene.
type SceneResponse struct {
	SceneNumber       int     `json:"sceneNumber"`
	ScenePrompt       string  `json:"scenePrompt"`
	VisualDescription string  `json:"visualDescription,omitempty"`
	ContinuityNotes   string  `json:"continuityNotes,omitempty"`
	NarrationText     string  `json:"narrationText,omitempty"`
	StartTime         float64 `json:"startTime"`
	EndTime           float64 `json:"endTime"`
	TransitionType    string  `json:"transitionType"`
}

// DecomposePromptOutput is the output for decomposing a prompt.
type DecomposePromptOutput struct {
	Body struct {
		Scenes []SceneResponse `json:"scenes"`
	}
}

// Decompose splits a prompt into an ordered scene breakdown via the
// storyboard provider.
func (h *PromptHandler) Decompose(ctx context.Context, input *DecomposePromptInput) (*DecomposePromptOutput, error) {
	segmentDuration := input.Body.SegmentDuration
	if segmentDuration <= 0 {
		segmentDuration = 12
	}

	scenes, err := h.storyboard.Decompose(ctx, input.Body.Prompt, input.Body.TargetDuration, segmentDuration)
	if err != nil {
		return nil, huma.Error502BadGateway("failed to decompose prompt", err)
	}

	resp := &DecomposePromptOutput{}
	resp.Body.Scenes = make([]SceneResponse, 0, len(scenes))
	for _, s := range scenes {
		resp.Body.Scenes = append(resp.Body.Scenes, SceneResponse{
			SceneNumber:       s.SceneNumber,
			ScenePrompt:       s.ScenePrompt,
			VisualDescription: s.VisualDescription,
			ContinuityNotes:   s.ContinuityNotes,
			NarrationText:     s.NarrationText,
			StartTime:         s.StartTime,
			EndTime:           s.EndTime,
			TransitionType:    string(s.TransitionType),
		})
	}
	return resp, nil
}
