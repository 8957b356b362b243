// Package client provides a Go client for a remote Conduct server over
// its HTTP API, including the Server-Sent Events log stream.
//
// Usage:
//
//	c := client.New("https://conduct.example.com",
//	    client.WithUser("alice"),
//	)
//
//	// Submit a job and tail its log.
//	j, err := c.Submit(ctx, "country_refresh", params)
//	events, err := c.Stream(ctx, j.ID)
//	for evt := range events {
//	    fmt.Println(evt.Line)
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/conducthq/conduct"
)

// Client talks to a remote Conduct server.
type Client struct {
	baseURL        string
	httpc          *http.Client
	userID         string
	identityHeader string
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithUser sets the user id sent on every request.
func WithUser(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// WithIdentityHeader overrides the header carrying the user id.
func WithIdentityHeader(name string) Option {
	return func(c *Client) { c.identityHeader = name }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        baseURL,
		httpc:          http.DefaultClient,
		identityHeader: "X-User-ID",
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the server. It unwraps to the
// matching conduct sentinel error where one exists, so callers can use
// errors.Is against the same taxonomy the server uses.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("conduct/client: server returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return conduct.ErrJobNotFound
	case http.StatusConflict:
		return conduct.ErrConflict
	case http.StatusUnprocessableEntity:
		return conduct.ErrValidation
	case http.StatusTooManyRequests:
		return conduct.ErrRateLimited
	default:
		return nil
	}
}

// do issues one request and decodes a JSON response into out (when out
// is non-nil). Non-2xx responses become an *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("conduct/client: marshal request: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("conduct/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("conduct/client: decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, fmt.Errorf("conduct/client: bad path %q: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("conduct/client: build request: %w", err)
	}
	if c.userID != "" {
		req.Header.Set(c.identityHeader, c.userID)
	}
	return req, nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
