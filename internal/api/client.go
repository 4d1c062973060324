// Package api is the JSON client for the ReWearify backend.
package api

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

// TokenSource yields the bearer credential for outgoing requests.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

// Token implements TokenSource.
func (f TokenFunc) Token() string { return f() }

// StaticToken is a fixed credential.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// StatusError is a response with status >= 400.
type StatusError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

// ClientError reports whether the server refused the request itself.
func (e *StatusError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// AsStatus extracts a *StatusError from err.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Client wraps interactions with the backend API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSource sets where bearer credentials come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// NewClient constructs a new client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of c that always sends token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.tokens = StaticToken(token)
	return &cp
}

// BaseURL returns the configured base.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.Do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Do sends in as JSON and decodes the response into out. Either may be nil.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("api: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &StatusError{Status: resp.StatusCode, Message: errorMessage(raw), Body: raw}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if token := strings.TrimSpace(c.tokens.Token()); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func errorMessage(raw []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(raw, &envelope) != nil {
		return ""
	}
	for _, m := range []string{envelope.Error, envelope.Message, envelope.Detail} {
		if m != "" {
			return m
		}
	}
	return ""
}
