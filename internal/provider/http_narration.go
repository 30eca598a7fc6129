package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jmylchreest/promptvid/internal/httpclient"
)

// HTTPNarrationProvider is a NarrationProvider backed by a text-to-speech
// HTTP API.
type HTTPNarrationProvider struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
}

// NewHTTPNarrationProvider creates an HTTP-backed NarrationProvider.
func NewHTTPNarrationProvider(client *httpclient.Client, baseURL, apiKey string) *HTTPNarrationProvider {
	return &HTTPNarrationProvider{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

type synthesizeRequestBody struct {
	Text            string  `json:"text"`
	ModelID         string  `json:"modelId"`
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarityBoost"`
	Style           float64 `json:"style"`
}

// Synthesize renders script to MP3 bytes via voiceID.
func (p *HTTPNarrationProvider) Synthesize(ctx context.Context, script, voiceID, model string, settings VoiceSettings) ([]byte, error) {
	body := synthesizeRequestBody{
		Text:            script,
		ModelID:         model,
		Stability:       settings.Stability,
		SimilarityBoost: settings.SimilarityBoost,
		Style:           settings.Style,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding narration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/text-to-speech/"+voiceID, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("building narration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	if p.apiKey != "" {
		req.Header.Set("xi-api-key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling narration provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("narration provider returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading narration audio: %w", err)
	}
	return data, nil
}

// encodeBase64 encodes bytes for transport as a continuity-hint field.
func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Ensure HTTPNarrationProvider implements NarrationProvider.
var _ NarrationProvider = (*HTTPNarrationProvider)(nil)
