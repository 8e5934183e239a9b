// Package crm implements the fire-and-forget side channel that forwards
// derived CRM payloads to the internal intake endpoint.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"voxloom/internal/models"
)

const defaultTimeout = 10 * time.Second

// Client posts intake payloads to the configured endpoint with a bounded
// timeout. It authenticates the same way the public API does.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// Send delivers one payload. Non-2xx responses count as failures; there are
// no retries at this layer.
func (c *Client) Send(ctx context.Context, payload models.IntakePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode crm payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build crm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post crm intake: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("crm intake returned status %d", resp.StatusCode)
	}
	return nil
}
