// Package spy is the test-facing facade: it binds to a running restspy
// server and drives its control API, so tests register doubles and
// inspect recorded traffic without touching HTTP themselves.
package spy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmrschmidt/RestSpy/pkg/logging"
	"github.com/dmrschmidt/RestSpy/pkg/server"
	"github.com/dmrschmidt/RestSpy/pkg/spylog"
)

// ControlError is a control API rejection: the machine-readable code
// and human-readable message from the server's error payload.
type ControlError struct {
	Code    string
	Message string
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Spy drives one server's control API.
type Spy struct {
	srv server.Server
	log *slog.Logger
}

// Option configures a Spy.
type Option func(*Spy)

// WithLogger sets the spy's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Spy) {
		if log != nil {
			s.log = log
		}
	}
}

// New binds a Spy to an already managed server. The caller keeps
// responsibility for the server's lifecycle.
func New(srv server.Server, opts ...Option) *Spy {
	s := &Spy{srv: srv, log: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOnPort builds and starts a local server on the given port and
// returns a Spy bound to it. Start errors propagate unchanged, so a
// DuplicatePortError or TimeoutError from the server layer reaches the
// caller as is.
func ServerOnPort(ctx context.Context, port int, reg *server.Registry, opts ...server.LocalServerOption) (*Spy, error) {
	srv := server.NewLocalServer(port, reg, opts...)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	return New(srv), nil
}

// OnExternalServer wraps a server somebody else runs. Start is a no-op
// for external servers, so the Spy is usable immediately.
func OnExternalServer(baseURL string, opts ...server.ExternalServerOption) (*Spy, error) {
	srv, err := server.NewExternalServer(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return New(srv), nil
}

// Server returns the underlying server.
func (s *Spy) Server() server.Server {
	return s.srv
}

// BaseURL returns the served base URL, the address the code under test
// should be pointed at.
func (s *Spy) BaseURL() string {
	return s.srv.BaseURL()
}

// DoubleOption customizes a registered double.
type DoubleOption func(*doublePayload)

// WithStatus sets the double's response status code.
func WithStatus(code int) DoubleOption {
	return func(p *doublePayload) { p.StatusCode = code }
}

// WithHeader adds a response header to the double.
func WithHeader(name, value string) DoubleOption {
	return func(p *doublePayload) {
		if p.Headers == nil {
			p.Headers = make(map[string]string)
		}
		p.Headers[name] = value
	}
}

type doublePayload struct {
	Pattern    string            `json:"pattern"`
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

type proxyPayload struct {
	Pattern string `json:"pattern"`
	Target  string `json:"target"`
}

// Double registers a canned response for every endpoint the pattern
// matches and returns its id.
func (s *Spy) Double(ctx context.Context, pattern, body string, opts ...DoubleOption) (string, error) {
	payload := doublePayload{Pattern: pattern, StatusCode: http.StatusOK, Body: body}
	for _, opt := range opts {
		opt(&payload)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding double: %w", err)
	}

	answer, err := s.srv.Post(ctx, "/doubles", data)
	if err != nil {
		return "", fmt.Errorf("registering double: %w", err)
	}

	id, err := parseID(answer)
	if err != nil {
		return "", fmt.Errorf("registering double: %w", err)
	}
	s.log.Debug("double registered", "id", id, "pattern", pattern)
	return id, nil
}

// Proxy registers a pass-through to target for every endpoint the
// pattern matches and returns its id.
func (s *Spy) Proxy(ctx context.Context, pattern, target string) (string, error) {
	data, err := json.Marshal(proxyPayload{Pattern: pattern, Target: target})
	if err != nil {
		return "", fmt.Errorf("encoding proxy: %w", err)
	}

	answer, err := s.srv.Post(ctx, "/proxies", data)
	if err != nil {
		return "", fmt.Errorf("registering proxy: %w", err)
	}

	id, err := parseID(answer)
	if err != nil {
		return "", fmt.Errorf("registering proxy: %w", err)
	}
	s.log.Debug("proxy registered", "id", id, "pattern", pattern, "target", target)
	return id, nil
}

// Unregister removes the matchable with the given id. Unknown ids are
// quietly accepted; the server treats the delete as idempotent.
func (s *Spy) Unregister(ctx context.Context, id string) error {
	if _, err := s.srv.Delete(ctx, "/doubles/"+id); err != nil {
		return fmt.Errorf("unregistering %s: %w", id, err)
	}
	return nil
}

// Reset clears every registered double and proxy and all recordings.
func (s *Spy) Reset(ctx context.Context) error {
	if _, err := s.srv.Delete(ctx, "/doubles"); err != nil {
		return fmt.Errorf("resetting doubles: %w", err)
	}
	if _, err := s.srv.Delete(ctx, "/spy"); err != nil {
		return fmt.Errorf("clearing recordings: %w", err)
	}
	return nil
}

// Filter narrows Requests to matching recordings. Zero values mean
// "any".
type Filter struct {
	// Method keeps entries with this HTTP method.
	Method string

	// Path keeps entries whose endpoint contains this substring.
	Path string

	// Limit caps the result to the most recent n entries.
	Limit int
}

func (f Filter) query() string {
	q := url.Values{}
	if f.Method != "" {
		q.Set("method", f.Method)
	}
	if f.Path != "" {
		q.Set("path", f.Path)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// Requests returns the recorded entries matching the filter, oldest
// first.
func (s *Spy) Requests(ctx context.Context, f Filter) ([]spylog.Entry, error) {
	answer, err := s.srv.Get(ctx, "/spy/requests"+f.query())
	if err != nil {
		return nil, fmt.Errorf("listing requests: %w", err)
	}

	var listing struct {
		Requests []spylog.Entry `json:"requests"`
	}
	if err := json.Unmarshal(answer, &listing); err != nil {
		return nil, fmt.Errorf("parsing request listing: %w", err)
	}
	return listing.Requests, nil
}

// Status is the server's self-report.
type Status struct {
	Status   string `json:"status"`
	Port     int    `json:"port"`
	Doubles  int    `json:"doubles"`
	Recorded int    `json:"recorded"`
}

// Status fetches the server's status: whether it runs, its port, and
// how much it holds.
func (s *Spy) Status(ctx context.Context) (Status, error) {
	answer, err := s.srv.Get(ctx, "/spy/status")
	if err != nil {
		return Status{}, fmt.Errorf("fetching status: %w", err)
	}

	var status Status
	if err := json.Unmarshal(answer, &status); err != nil {
		return Status{}, fmt.Errorf("parsing status: %w", err)
	}
	return status, nil
}

// Close stops the underlying server.
func (s *Spy) Close(ctx context.Context) error {
	return s.srv.Stop(ctx)
}

func parseID(answer []byte) (string, error) {
	var parsed struct {
		ID      string `json:"id"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(answer, &parsed); err != nil {
		return "", fmt.Errorf("parsing control answer: %w", err)
	}
	if parsed.Error != "" {
		return "", &ControlError{Code: parsed.Error, Message: parsed.Message}
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("control answer carries no id")
	}
	return parsed.ID, nil
}
