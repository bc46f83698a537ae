package feedclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"campustrace/internal/alertfeed"
)

// Client pulls the latest alert CSV from the predictor service. The
// predictor exposes the same columnar feed it writes to disk, so a pull
// replaces the local file drop when the service is reachable.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. Skip short-circuits every call for environments
// without a predictor (local dev, tests).
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Health checks the predictor service liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("predictor health: status %d", resp.StatusCode)
	}
	return nil
}

// FetchAlerts downloads and parses the latest feed. Single attempt, no
// retries; the caller degrades to the local file or an empty feed.
func (c *Client) FetchAlerts(ctx context.Context) ([]alertfeed.Alert, error) {
	if c.Skip {
		return []alertfeed.Alert{}, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/alerts/latest", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/csv")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("predictor feed: status %d: %s", resp.StatusCode, body)
	}
	alerts, err := alertfeed.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("predictor feed: %w", err)
	}
	return alerts, nil
}
