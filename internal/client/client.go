// client.go — HTTP client for a running psat daemon.
// Used by the CLI's read and settings commands.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brennhill/psat-core/internal/settings"
	"github.com/brennhill/psat-core/internal/types"
)

const (
	requestTimeout     = 10 * time.Second
	healthPollInterval = 100 * time.Millisecond
)

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for addr ("127.0.0.1:7891" or a full URL).
func New(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// StatusError is a non-2xx daemon reply.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon: HTTP %d", e.Status)
	}
	return fmt.Sprintf("daemon: HTTP %d: %s", e.Status, e.Message)
}

// Health is the daemon's /health reply.
type Health struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Tabs     int    `json:"tabs"`
	Pending  int    `json:"pending"`
	Surfaces int    `json:"surfaces"`
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

// WaitReady polls /health until the daemon answers or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()
	for {
		if _, err := c.Health(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon at %s not ready: %w", c.baseURL, ctx.Err())
		case <-ticker.C:
		}
	}
}

// TabList is the /tabs reply.
type TabList struct {
	Tabs       []types.TabSummary `json:"tabs"`
	Designated int                `json:"designated"`
}

// Tabs lists tracked tabs.
func (c *Client) Tabs(ctx context.Context) (TabList, error) {
	var out TabList
	err := c.do(ctx, http.MethodGet, "/tabs", nil, &out)
	return out, err
}

// Snapshot fetches one tab's state, optionally narrowed to categories.
func (c *Client) Snapshot(ctx context.Context, tabID int, cats ...types.Category) (types.TabSnapshot, error) {
	path := fmt.Sprintf("/tabs/%d/snapshot", tabID)
	if len(cats) > 0 {
		names := make([]string, len(cats))
		for i, cat := range cats {
			names[i] = string(cat)
		}
		path += "?category=" + strings.Join(names, ",")
	}
	var snap types.TabSnapshot
	err := c.do(ctx, http.MethodGet, path, nil, &snap)
	return snap, err
}

// Switch designates tabID.
func (c *Client) Switch(ctx context.Context, tabID int, url string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/tabs/%d/switch", tabID), map[string]string{"url": url}, nil)
}

// Settings fetches the active settings.
func (c *Client) Settings(ctx context.Context) (settings.Settings, error) {
	var s settings.Settings
	err := c.do(ctx, http.MethodGet, "/settings", nil, &s)
	return s, err
}

// PutSettings replaces the settings and reports whether the daemon
// re-initialized.
func (c *Client) PutSettings(ctx context.Context, s settings.Settings) (bool, error) {
	var out struct {
		Reinitialized bool `json:"reinitialized"`
	}
	err := c.do(ctx, http.MethodPut, "/settings", s, &out)
	return out.Reinitialized, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
