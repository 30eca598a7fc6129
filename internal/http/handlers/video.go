package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/jmylchreest/promptvid/internal/service"
)

// VideoHandler handles video generation API endpoints.
type VideoHandler struct {
	videoService *service.VideoService
}

// NewVideoHandler creates a new video handler.
func NewVideoHandler(videoService *service.VideoService) *VideoHandler {
	return &VideoHandler{videoService: videoService}
}

// Register registers the video routes with the API.
func (h *VideoHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "createVideo",
		Method:      "POST",
		Path:        "/api/v1/videos/create",
		Summary:     "Create a video",
		Description: "Submits a prompt for video generation. Rejects with 503 if the orchestrator is busy",
		Tags:        []string{"Videos"},
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "getVideo",
		Method:      "GET",
		Path:        "/api/v1/videos/{id}",
		Summary:     "Get video",
		Description: "Returns the full VideoRun projection, including scenes and segments",
		Tags:        []string{"Videos"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "getVideoStatus",
		Method:      "GET",
		Path:        "/api/v1/videos/{id}/status",
		Summary:     "Get video status",
		Description: "Returns the run's current phase, progress and segment counters",
		Tags:        []string{"Videos"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "getVideoSegments",
		Method:      "GET",
		Path:        "/api/v1/videos/{id}/segments",
		Summary:     "Get video segments",
		Description: "Returns ordered segment projections with derived progress",
		Tags:        []string{"Videos"},
	}, h.GetSegments)

	huma.Register(api, huma.Operation{
		OperationID: "cancelVideo",
		Method:      "POST",
		Path:        "/api/v1/videos/{id}/cancel",
		Summary:     "Cancel video",
		Description: "Requests cancellation of a non-terminal run",
		Tags:        []string{"Videos"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "deleteVideo",
		Method:      "DELETE",
		Path:        "/api/v1/videos/{id}",
		Summary:     "Delete video",
		Description: "Removes a terminal run's record and on-disk artifacts",
		Tags:        []string{"Videos"},
	}, h.Delete)
}

// CreateVideoRequest is the request body for creating a video.
type CreateVideoRequest struct {
	UserID         string            `json:"userId,omitempty" doc:"Owning user ID"`
	Prompt         string            `json:"prompt" doc:"The prompt to generate a video from" required:"true"`
	OriginalPrompt string            `json:"originalPrompt,omitempty" doc:"Raw prompt, if different from the enhanced one"`
	Duration       int               `json:"duration" doc:"Target duration in seconds" minimum:"5" maximum:"120" required:"true"`
	VoiceID        string            `json:"voiceId,omitempty" doc:"Narration voice identifier"`
	Scenes         []CreateSceneBody `json:"scenes,omitempty" doc:"Caller-supplied storyboard; skips LLM decomposition when present"`
}

// CreateSceneBody is one caller-supplied scene in a CreateVideoRequest.
type CreateSceneBody struct {
	ScenePrompt       string `json:"scenePrompt" doc:"Visual prompt for this scene" required:"true"`
	VisualDescription string `json:"visualDescription,omitempty"`
	ContinuityNotes   string `json:"continuityNotes,omitempty"`
	NarrationText     string `json:"narrationText,omitempty" doc:"Narration line for this scene, ≤500 chars"`
	TransitionType    string `json:"transitionType,omitempty" doc:"crossfade or cut"`
}

// CreateVideoInput is the input for creating a video.
type CreateVideoInput struct {
	Body CreateVideoRequest
}

// CreateVideoResponse is the response body for a newly created video run.
type CreateVideoResponse struct {
	ID             string `json:"id"`
	Title          string `json:"title,omitempty"`
	TargetDuration int    `json:"targetDuration"`
	SegmentCount   int    `json:"segmentCount"`
	Status         string `json:"status"`
}

// CreateVideoOutput is the output for creating a video.
type CreateVideoOutput struct {
	Body CreateVideoResponse
}

// Create submits a new video generation request.
func (h *VideoHandler) Create(ctx context.Context, input *CreateVideoInput) (*CreateVideoOutput, error) {
	originalPrompt := input.Body.OriginalPrompt
	if originalPrompt == "" {
		originalPrompt = input.Body.Prompt
	}

	var scenes []service.SceneInput
	for _, sc := range input.Body.Scenes {
		scenes = append(scenes, service.SceneInput{
			ScenePrompt:       sc.ScenePrompt,
			VisualDescription: sc.VisualDescription,
			ContinuityNotes:   sc.ContinuityNotes,
			NarrationText:     sc.NarrationText,
			TransitionType:    models.TransitionType(sc.TransitionType),
		})
	}

	run, err := h.videoService.Create(ctx, service.CreateRequest{
		UserID:         input.Body.UserID,
		OriginalPrompt: originalPrompt,
		EnhancedPrompt: input.Body.Prompt,
		TargetDuration: input.Body.Duration,
		VoiceID:        input.Body.VoiceID,
		Scenes:         scenes,
	})
	if err != nil {
		if errors.Is(err, service.ErrOrchestratorBusy) {
			return nil, huma.Error503ServiceUnavailable("orchestrator is busy processing another video")
		}
		if errors.Is(err, models.ErrPromptRequired) || errors.Is(err, models.ErrTargetDurationOutOfRange) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to create video", err)
	}

	return &CreateVideoOutput{
		Body: CreateVideoResponse{
			ID:             run.ID.String(),
			Title:          run.Title,
			TargetDuration: run.TargetDuration,
			SegmentCount:   run.SegmentCount,
			Status:         string(run.Status),
		},
	}, nil
}

// GetVideoInput is the input for getting a video.
type GetVideoInput struct {
	ID string `path:"id" doc:"Video run ID (ULID)"`
}

// GetVideoOutput is the output for getting a video.
type GetVideoOutput struct {
	Body *models.VideoRun
}

// GetByID returns the full VideoRun projection.
func (h *VideoHandler) GetByID(ctx context.Context, input *GetVideoInput) (*GetVideoOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	run, err := h.videoService.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("video %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to get video", err)
	}

	return &GetVideoOutput{Body: run}, nil
}

// GetVideoStatusInput is the input for getting video status.
type GetVideoStatusInput struct {
	ID string `path:"id" doc:"Video run ID (ULID)"`
}

// VideoStatusResponse is the status projection returned for a video run.
type VideoStatusResponse struct {
	Status            string `json:"status"`
	Progress          int    `json:"progress"`
	CurrentPhase      string `json:"currentPhase,omitempty"`
	CurrentSegment    int    `json:"currentSegment"`
	SegmentCount      int    `json:"segmentCount"`
	CompletedSegments int    `json:"completedSegments"`
	FailedSegments    int    `json:"failedSegments"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
	IsProcessing      bool   `json:"isProcessing"`
}

// GetVideoStatusOutput is the output for getting video status.
type GetVideoStatusOutput struct {
	Body VideoStatusResponse
}

// GetStatus returns the run's current phase, progress and segment counters.
func (h *VideoHandler) GetStatus(ctx context.Context, input *GetVideoStatusInput) (*GetVideoStatusOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	status, err := h.videoService.GetStatus(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("video %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to get video status", err)
	}

	return &GetVideoStatusOutput{
		Body: VideoStatusResponse{
			Status:            string(status.Status),
			Progress:          status.Progress,
			CurrentPhase:      status.CurrentPhase,
			CurrentSegment:    status.CurrentSegment,
			SegmentCount:      status.SegmentCount,
			CompletedSegments: status.CompletedSegments,
			FailedSegments:    status.FailedSegments,
			ErrorMessage:      status.ErrorMessage,
			IsProcessing:      status.IsProcessing,
		},
	}, nil
}

// GetVideoSegmentsInput is the input for getting video segments.
type GetVideoSegmentsInput struct {
	ID string `path:"id" doc:"Video run ID (ULID)"`
}

// SegmentResponse is one segment projection.
type SegmentResponse struct {
	SegmentNumber int    `json:"segmentNumber"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	FilePath      string `json:"filePath,omitempty"`
	Error         string `json:"error,omitempty"`
	RetryCount    int    `json:"retryCount"`
}

// GetVideoSegmentsOutput is the output for getting video segments.
type GetVideoSegmentsOutput struct {
	Body struct {
		Segments []SegmentResponse `json:"segments"`
	}
}

// GetSegments returns the ordered segment projections for a run.
func (h *VideoHandler) GetSegments(ctx context.Context, input *GetVideoSegmentsInput) (*GetVideoSegmentsOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	segments, err := h.videoService.GetSegments(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("video %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to get video segments", err)
	}

	resp := &GetVideoSegmentsOutput{}
	resp.Body.Segments = make([]SegmentResponse, 0, len(segments))
	for _, seg := range segments {
		resp.Body.Segments = append(resp.Body.Segments, SegmentResponse{
			SegmentNumber: seg.SegmentNumber,
			Status:        string(seg.Status),
			Progress:      seg.Progress,
			FilePath:      seg.FilePath,
			Error:         seg.Error,
			RetryCount:    seg.RetryCount,
		})
	}
	return resp, nil
}

// CancelVideoInput is the input for cancelling a video.
type CancelVideoInput struct {
	ID string `path:"id" doc:"Video run ID (ULID)"`
}

// CancelVideoOutput is the output for cancelling a video.
type CancelVideoOutput struct {
	Body struct {
		Cancelled bool `json:"cancelled"`
	}
}

// Cancel requests cancellation of a non-terminal run.
func (h *VideoHandler) Cancel(ctx context.Context, input *CancelVideoInput) (*CancelVideoOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	cancelled, err := h.videoService.Cancel(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("video %s not found", input.ID))
		}
		return nil, huma.Error500InternalServerError("failed to cancel video", err)
	}

	resp := &CancelVideoOutput{}
	resp.Body.Cancelled = cancelled
	return resp, nil
}

// DeleteVideoInput is the input for deleting a video.
type DeleteVideoInput struct {
	ID string `path:"id" doc:"Video run ID (ULID)"`
}

// DeleteVideoOutput is the output for deleting a video.
type DeleteVideoOutput struct{}

// Delete removes a terminal run's record and on-disk artifacts.
func (h *VideoHandler) Delete(ctx context.Context, input *DeleteVideoInput) (*DeleteVideoOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid ID format", err)
	}

	if err := h.videoService.Delete(ctx, id); err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("video %s not found", input.ID))
		}
		if errors.Is(err, service.ErrVideoNotTerminal) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to delete video", err)
	}

	return &DeleteVideoOutput{}, nil
}
