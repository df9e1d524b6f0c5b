package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CoCoMind/coco-device-sub000/internal/retry"
)

const elevenLabsURL = "https://api.elevenlabs.io"

// ElevenLabsClient renders lines through the HTTP streaming endpoint.
type ElevenLabsClient struct {
	APIKey     string
	VoiceID    string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Policy
}

func NewElevenLabsClient(apiKey, voiceID string, policy retry.Policy) *ElevenLabsClient {
	return &ElevenLabsClient{
		APIKey:     apiKey,
		VoiceID:    voiceID,
		Model:      "eleven_flash_v2_5",
		BaseURL:    elevenLabsURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Retry:      policy,
	}
}

func (e *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if e.APIKey == "" || e.VoiceID == "" {
		return nil, retry.Permanent(errors.New("elevenlabs: api key or voice id missing"))
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return retry.Value(ctx, e.Retry, func(ctx context.Context) ([]byte, error) {
		return e.stream(ctx, text)
	})
}

func (e *ElevenLabsClient) stream(ctx context.Context, text string) ([]byte, error) {
	u, err := url.Parse(strings.TrimRight(e.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(e.VoiceID) + "/stream")
	if err != nil {
		return nil, retry.Permanent(err)
	}
	q := u.Query()
	q.Set("output_format", fmt.Sprintf("pcm_%d", SampleRate))
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": e.Model,
		"text":     text,
		"voice_settings": map[string]any{
			// slower, steadier delivery for older listeners
			"stability":         0.6,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	buf, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs http stream error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &retry.StatusError{Service: "elevenlabs", StatusCode: resp.StatusCode, Body: string(b)}
	}
	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs http read error: %w", err)
	}
	// PCM16 must be whole samples
	return pcm[:len(pcm)&^1], nil
}
