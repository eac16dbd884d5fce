// Package sheets pushes projected income snapshots to the spreadsheet
// bridge endpoint.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// PushPath is appended to the configured base URL.
	PushPath = "/income_update"

	// DefaultTimeout bounds a single push request.
	DefaultTimeout = 2 * time.Second

	maxBodySize = 64 << 10
)

// ErrTransport wraps network-level push failures: timeouts, refused
// connections, broken responses.
var ErrTransport = errors.New("sheets: transport failure")

// Client posts payloads to a single endpoint.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a client for baseURL. A non-positive timeout falls back
// to DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		timeout: timeout,
		http:    &http.Client{},
	}
}

// Endpoint returns the full push URL.
func (c *Client) Endpoint() string {
	return c.baseURL + PushPath
}

// Push sends p and reports whether the endpoint accepted it, along with the
// response status code (0 when no response arrived). The request is bounded
// by the client timeout regardless of ctx's own deadline.
func (c *Client) Push(ctx context.Context, p Payload) (int, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("sheets: encoding payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("sheets: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "github.com/theirongolddev/incomesync/1.0")

	//nolint:gosec // URL comes from the local config file
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: reading response: %w", ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &RejectedError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}
	return resp.StatusCode, nil
}
