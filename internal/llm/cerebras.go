package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/CoCoMind/coco-device-sub000/internal/retry"
)

const DefaultURL = "https://api.cerebras.ai/v1/chat/completions"

type CerebrasClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	URL        string
	Retry      retry.Policy
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewCerebrasClient(apiKey, model string, policy retry.Policy) *CerebrasClient {
	return &CerebrasClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		URL:        DefaultURL,
		Retry:      policy,
	}
}

// Generate sends a system prompt plus one user message and returns the reply.
func (c *CerebrasClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if c.APIKey == "" {
		return "", retry.Permanent(fmt.Errorf("cerebras api key missing"))
	}
	messages := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}
	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: c.Model, Messages: messages, Temperature: 0.4, MaxTokens: 200})
	return retry.Value(ctx, c.Retry, func(ctx context.Context) (string, error) {
		return c.complete(ctx, reqBody)
	})
}

func (c *CerebrasClient) complete(ctx context.Context, reqBody []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(reqBody))
	if err != nil {
		return "", retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &retry.StatusError{Service: "cerebras", StatusCode: resp.StatusCode, Body: string(b)}
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", retry.Permanent(fmt.Errorf("cerebras: decode: %w", err))
	}
	if len(cr.Choices) == 0 {
		return "", retry.Permanent(fmt.Errorf("cerebras: empty choices"))
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
