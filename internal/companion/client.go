// Package companion talks to the locally running resource service that
// serves the packages index and owns the merged toolchain trees.
package companion

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
	"syscall"
	"time"

	"openblock/internal/httpx"
	"openblock/internal/index"
)

// DefaultTimeout bounds every companion request.
const DefaultTimeout = 10 * time.Second

// ErrNotRunning reports that nothing accepted the connection.
var ErrNotRunning = errors.New("companion service not running")

// Client is an HTTP client for the companion service.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a client for baseURL with the default timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// PackagesIndex fetches the index the service has cached.
func (c *Client) PackagesIndex(ctx context.Context) (*index.PackagesIndex, error) {
	var idx index.PackagesIndex
	if err := c.do(ctx, http.MethodGet, "/api/packages-index", nil, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// ToolchainStatus is the service's view of one toolchain.
type ToolchainStatus struct {
	Cached  bool   `json:"cached"`
	Version string `json:"version,omitempty"`
}

// ToolchainStatus asks whether the service already holds name.
func (c *Client) ToolchainStatus(ctx context.Context, name string) (ToolchainStatus, error) {
	var st ToolchainStatus
	err := c.do(ctx, http.MethodGet, "/api/toolchains/"+url.PathEscape(name), nil, &st)
	return st, err
}

// MergeStats counts files copied into, or already present in, the unified tree.
type MergeStats struct {
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
}

// MergeToolchain merges an extracted toolchain directory into the unified
// tree for platform.
func (c *Client) MergeToolchain(ctx context.Context, platform, sourcePath string) (MergeStats, error) {
	body := struct {
		Platform   string `json:"platform"`
		SourcePath string `json:"sourcePath"`
	}{Platform: platform, SourcePath: sourcePath}

	var stats MergeStats
	err := c.do(ctx, http.MethodPost, "/api/toolchains/merge", body, &stats)
	return stats, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpx.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("%s %s: %w", method, endpoint, ErrNotRunning)
		}
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %s: %s", method, endpoint, resp.Status, httpx.ErrorBody(resp.Body))
	}

	var env envelope
	if err := httpx.DecodeResponse(resp.Body, &env); err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request failed"
		}
		return fmt.Errorf("%s %s: %s", method, endpoint, msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, endpoint, err)
	}
	return nil
}
