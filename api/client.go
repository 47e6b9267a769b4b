// Package api is the HTTP collaborator for the DFX REST API.
//
// Every call is relative to a base URL and carries the bearer token the
// client was built with. Do raises a *StatusError on non-2xx responses;
// DoStatus returns the status alongside the body instead.
package api

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

	"github.com/nuralogix/dfx-apiv2-client-go/iox"
	"github.com/nuralogix/dfx-apiv2-client-go/types"
)

// Default endpoints.
const (
	DefaultBaseURL      = "https://api.deepaffex.ai"
	DefaultWebSocketURL = "wss://api.deepaffex.ai"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// Config configures the client.
type Config struct {
	// BaseURL is the REST root (default DefaultBaseURL).
	BaseURL string
	// Token is the bearer token. Empty means unauthenticated calls.
	Token string
	// UserAgent overrides the default User-Agent header.
	UserAgent string
	// Timeout is the per-request timeout (default 30s). Ignored when
	// HTTPClient is set.
	Timeout time.Duration
	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client
}

// Client issues REST calls against the DFX API.
type Client struct {
	base      *url.URL
	token     string
	userAgent string
	http      *http.Client
}

// New creates a client from the given config.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = types.AppID + "/" + types.Version
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		base:      base,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		http:      hc,
	}, nil
}

// Token returns the bearer token the client authenticates with.
func (c *Client) Token() string {
	return c.token
}

// BaseURL returns the REST root.
func (c *Client) BaseURL() string {
	return strings.TrimRight(c.base.String(), "/")
}

// AuthHeader returns the Authorization header for the client's token, or
// nil when the client has no token.
func (c *Client) AuthHeader() http.Header {
	if c.token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	return h
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code   int
	Method string
	Path   string
	// Body is the (truncated) response body.
	Body []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.Code)
	if detail := e.detail(); detail != "" {
		msg += ": " + detail
	}
	return msg
}

// Structured reports whether the response body carried a JSON error
// document with a Code or Message.
func (e *StatusError) Structured() bool {
	var body struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	}
	return json.Unmarshal(e.Body, &body) == nil && (body.Code != "" || body.Message != "")
}

// detail extracts the server's error message from a JSON body, falling back
// to the raw text.
func (e *StatusError) detail() string {
	if len(e.Body) == 0 {
		return ""
	}
	var body struct {
		Code    string `json:"Code"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(e.Body, &body); err == nil && (body.Code != "" || body.Message != "") {
		return strings.TrimSpace(body.Code + " " + body.Message)
	}
	return strings.TrimSpace(string(e.Body))
}

// IsStatusError reports whether err is or wraps a *StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// Do performs a request and decodes a JSON response into out (if non-nil).
// Non-2xx responses return a *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	status, body, err := c.DoStatus(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &StatusError{Code: status, Method: method, Path: path, Body: truncate(body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}

// DoStatus performs a request and returns the status code and raw body
// without treating error statuses as failures.
func (c *Client) DoStatus(ctx context.Context, method, path string, query url.Values, in any) (int, []byte, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return 0, nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	u := c.base.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("%s %s: marshal request: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: request failed: %w", method, path, err)
	}
	defer iox.DrainClose(resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	return resp.StatusCode, body, nil
}

// Get is Do with GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post is Do with POST.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, in, out)
}

// Patch is Do with PATCH.
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, in, out)
}

// Delete is Do with DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}
