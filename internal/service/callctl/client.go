package callctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPChannel delivers call updates to a telephony provider's REST endpoint.
type HTTPChannel struct {
	baseURL string
	client  *http.Client
}

// NewHTTPChannel creates a channel posting updates to
// {baseURL}/calls/{callID}/update.
func NewHTTPChannel(baseURL string) *HTTPChannel {
	return &HTTPChannel{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// UpdateCall posts the update and reports any transport or non-2xx failure.
func (c *HTTPChannel) UpdateCall(ctx context.Context, callID string, update Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal call update: %w", err)
	}

	url := fmt.Sprintf("%s/calls/%s/update", c.baseURL, callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build call update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send call update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("call update rejected: status %d", resp.StatusCode)
	}
	return nil
}
