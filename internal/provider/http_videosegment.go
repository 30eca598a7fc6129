package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jmylchreest/promptvid/internal/httpclient"
)

// SegmentWidth and SegmentHeight are the fixed generation resolution the
// text-to-video provider produces; the orchestrator transcodes down to
// 720p/480p deliverables afterward.
const (
	SegmentWidth  = 1920
	SegmentHeight = 1080
)

// HTTPVideoSegmentProvider is a VideoSegmentProvider backed by an
// asynchronous text-to-video HTTP API (start/poll/fetch).
type HTTPVideoSegmentProvider struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

// NewHTTPVideoSegmentProvider creates an HTTP-backed VideoSegmentProvider.
func NewHTTPVideoSegmentProvider(client *httpclient.Client, baseURL, apiKey string) *HTTPVideoSegmentProvider {
	return &HTTPVideoSegmentProvider{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type startRequestBody struct {
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	DurationSecs   int    `json:"durationSeconds"`
	ContinuityHint string `json:"continuityHint,omitempty"`
}

type startResponseBody struct {
	JobID string `json:"jobId"`
}

// Start begins generation and returns the provider job ID.
func (p *HTTPVideoSegmentProvider) Start(ctx context.Context, scenePrompt string, width, height, nSeconds int, continuityHint []byte) (string, error) {
	body := startRequestBody{
		Prompt:       scenePrompt,
		Width:        width,
		Height:       height,
		DurationSecs: nSeconds,
	}
	if len(continuityHint) > 0 {
		body.ContinuityHint = encodeBase64(continuityHint)
	}

	var resp startResponseBody
	if err := p.postJSON(ctx, "/generations", body, &resp); err != nil {
		return "", fmt.Errorf("starting segment generation: %w", err)
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("segment generation provider returned an empty job id")
	}
	return resp.JobID, nil
}

type pollResponseBody struct {
	State         string   `json:"state"`
	GenerationIDs []string `json:"generationIds"`
	Error         string   `json:"error"`
}

// Poll reports the current state of jobID.
func (p *HTTPVideoSegmentProvider) Poll(ctx context.Context, jobID string) (PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/generations/"+jobID, nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("building poll request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return PollResult{}, fmt.Errorf("polling segment generation job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return PollResult{}, fmt.Errorf("poll for job %s returned status %d", jobID, resp.StatusCode)
	}

	var body pollResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return PollResult{}, fmt.Errorf("decoding poll response for job %s: %w", jobID, err)
	}

	return PollResult{
		State:         JobState(body.State),
		GenerationIDs: body.GenerationIDs,
		Error:         body.Error,
	}, nil
}

// FetchContent retrieves the generated clip bytes for generationID.
func (p *HTTPVideoSegmentProvider) FetchContent(ctx context.Context, generationID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/generations/"+generationID+"/content", nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching generation %s content: %w", generationID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch for generation %s returned status %d", generationID, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading generation %s content: %w", generationID, err)
	}
	return data, nil
}

func (p *HTTPVideoSegmentProvider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}

func (p *HTTPVideoSegmentProvider) postJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Ensure HTTPVideoSegmentProvider implements VideoSegmentProvider.
var _ VideoSegmentProvider = (*HTTPVideoSegmentProvider)(nil)
