// Package apiclient is the single HTTP client every API call goes through.
// It attaches the session's bearer token before each request and reacts to
// 401 responses by clearing the session and sending the user to login.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultBaseURL is used when no API base URL is configured.
const DefaultBaseURL = "http://localhost:3001/api"

// Credentials is the part of the session store the client needs.
type Credentials interface {
	Token() (string, bool)
	Clear(ctx context.Context) error
}

// Navigator performs the "go to login" effect after a rejected session.
type Navigator interface {
	ToLogin()
}

// NavigatorFunc adapts a plain function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) ToLogin() { f() }

type noopNavigator struct{}

func (noopNavigator) ToLogin() {}

// Client sends requests to the remote API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	nav        Navigator
	log        *slog.Logger
	userAgent  string
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. Its transport is used as
// is; no tracing wrapper is added.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithNavigator sets the effect invoked after a 401.
func WithNavigator(n Navigator) Option {
	return func(c *Client) {
		if n != nil {
			c.nav = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, creds Credentials, opts ...Option) (*Client, error) {
	if creds == nil {
		return nil, fmt.Errorf("credentials are required")
	}
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		creds:     creds,
		nav:       noopNavigator{},
		log:       slog.Default(),
		userAgent: "ghcrm",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalised API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Body   any

	// Public marks credential-exchange endpoints (login, signup). A 401 on a
	// public request means the submitted credentials were wrong, not that the
	// session expired, so the session is left alone.
	Public bool
}

// Do sends req and decodes a JSON response into out (when out is non-nil and
// the response has a body). Failures are either *NetworkError or
// *StatusError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.DebugContext(ctx, "api request failed",
			"method", req.Method, "path", req.Path, "request_id", httpReq.Header.Get("X-Request-ID"), "error", err)
		return &NetworkError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer resp.Body.Close()

	c.log.DebugContext(ctx, "api request",
		"method", req.Method, "path", req.Path, "status", resp.StatusCode,
		"request_id", httpReq.Header.Get("X-Request-ID"), "duration", time.Since(start))

	if err := c.inspect(ctx, req, resp); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Method: req.Method, Path: req.Path, Err: fmt.Errorf("read response: %w", err)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", req.Method, req.Path, err)
	}
	return nil
}

// newRequest is the request stage: it builds the HTTP request and attaches
// the bearer credential when the session holds one.
func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", ulid.Make().String())

	if token, ok := c.creds.Token(); ok {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

// inspect is the response stage. Non-error statuses pass through. A 401 on
// a session request clears the credential and navigates to login before the
// error is returned to the caller.
func (c *Client) inspect(ctx context.Context, req Request, resp *http.Response) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	statusErr := &StatusError{
		Method:  req.Method,
		Path:    req.Path,
		Status:  resp.StatusCode,
		Message: extractMessage(resp.Body),
	}

	if statusErr.Unauthorized() && !req.Public {
		c.log.WarnContext(ctx, "session rejected by api, signing out", "method", req.Method, "path", req.Path)
		if err := c.creds.Clear(context.WithoutCancel(ctx)); err != nil {
			c.log.ErrorContext(ctx, "clear session", "error", err)
		}
		c.nav.ToLogin()
	}
	return statusErr
}
