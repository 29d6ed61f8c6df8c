package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds each request a Client issues.
const DefaultTimeout = 10 * time.Second

// Client issues HTTP calls against one server's base URL. It is the
// transport behind every Server verb.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds each request round trip.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpc.Timeout = d }
}

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpc = hc }
}

// NewClient builds a client bound to baseURL, e.g. "http://localhost:4545".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the URL the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches endpoint and returns the answer body. Any status other
// than 200 fails with *StatusError.
func (c *Client) Get(ctx context.Context, endpoint string) ([]byte, error) {
	status, body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &StatusError{StatusCode: status}
	}
	return body, nil
}

// Post sends body to endpoint and returns the answer body. The status
// code is not checked.
func (c *Client) Post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	_, respBody, err := c.do(ctx, http.MethodPost, endpoint, body)
	return respBody, err
}

// Delete issues a DELETE against endpoint and returns the answer body.
// The status code is not checked.
func (c *Client) Delete(ctx context.Context, endpoint string) ([]byte, error) {
	_, body, err := c.do(ctx, http.MethodDelete, endpoint, nil)
	return body, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building %s %s: %w", method, endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading %s %s answer: %w", method, endpoint, err)
	}
	return resp.StatusCode, respBody, nil
}
