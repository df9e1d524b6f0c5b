// Package backend posts session outcomes to the care-team ingest API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/CoCoMind/coco-device-sub000/internal/retry"
	"github.com/CoCoMind/coco-device-sub000/internal/session"
)

const (
	summaryPath      = "/internal/ingest/session_summary"
	startFailurePath = "/internal/ingest/session_start_failed"
)

type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string
	DeviceID   string
	Retry      retry.Policy
	log        *zap.Logger
}

func NewClient(baseURL, token, deviceID string, timeout time.Duration, policy retry.Policy, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	policy.AttemptTimeout = timeout
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		DeviceID:   deviceID,
		Retry:      policy,
		log:        log.Named("backend"),
	}
}

// SendSessionSummary posts the end-of-session report.
func (c *Client) SendSessionSummary(ctx context.Context, p *session.SummaryPayload) error {
	return c.post(ctx, summaryPath, p)
}

// SendSessionStartFailed reports a session that never got an identity.
func (c *Client) SendSessionStartFailed(ctx context.Context, f session.StartFailure) error {
	return c.post(ctx, startFailurePath, f)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	if c.BaseURL == "" {
		return retry.Permanent(fmt.Errorf("backend url not configured"))
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("backend: encode %s: %w", path, err)
	}
	attempt := 0
	err = retry.Do(ctx, c.Retry, func(ctx context.Context) error {
		attempt++
		err := c.send(ctx, path, payload)
		if err != nil {
			c.log.Warn("backend post failed", zap.String("path", path), zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("backend %s: %w", path, err)
	}
	c.log.Debug("backend post ok", zap.String("path", path), zap.Int("attempts", attempt))
	return nil
}

func (c *Client) send(ctx context.Context, path string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &retry.StatusError{Service: "backend", StatusCode: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
