// Package spytest runs an in-process restspy server for a single test.
// New binds a free port, serves in the background, registers shutdown
// with the test's cleanup, and exposes helpers that fail the test
// rather than returning errors.
package spytest

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dmrschmidt/RestSpy/pkg/engine"
	"github.com/dmrschmidt/RestSpy/pkg/spy"
	"github.com/dmrschmidt/RestSpy/pkg/spylog"
)

// readyBudget bounds how long New waits for the first answer from the
// freshly started server.
const readyBudget = 5 * time.Second

// Server is an in-process restspy server plus a Spy bound to it.
type Server struct {
	tb  testing.TB
	eng *engine.Server
	spy *spy.Spy
}

// Option configures the test server.
type Option func(*engine.Config, *[]engine.Option)

// WithSpyCapacity bounds how many exchanges the server records.
func WithSpyCapacity(n int) Option {
	return func(cfg *engine.Config, _ *[]engine.Option) { cfg.SpyCapacity = n }
}

// WithLogger routes server logs somewhere visible, usually handy only
// when debugging a test.
func WithLogger(log *slog.Logger) Option {
	return func(_ *engine.Config, opts *[]engine.Option) {
		*opts = append(*opts, engine.WithLogger(log))
	}
}

// WithUpstreamClient substitutes the HTTP client proxies forward with.
func WithUpstreamClient(hc *http.Client) Option {
	return func(_ *engine.Config, opts *[]engine.Option) {
		*opts = append(*opts, engine.WithUpstreamClient(hc))
	}
}

// New starts a server on a free port and returns it ready to use. The
// server stops when the test finishes.
func New(tb testing.TB, opts ...Option) *Server {
	tb.Helper()

	cfg := engine.DefaultConfig()
	cfg.Port = 0
	var engOpts []engine.Option
	for _, opt := range opts {
		opt(cfg, &engOpts)
	}

	eng := engine.NewServer(cfg, engOpts...)
	if err := eng.Start(); err != nil {
		tb.Fatalf("starting test server: %v", err)
	}
	tb.Cleanup(func() { _ = eng.Stop() })

	sp, err := spy.OnExternalServer("http://" + hostAddr(eng.Addr()))
	if err != nil {
		tb.Fatalf("binding to test server: %v", err)
	}

	s := &Server{tb: tb, eng: eng, spy: sp}
	s.waitReady()
	return s
}

// hostAddr rewrites a listener address like ":4545" or "[::]:4545"
// into one a client can dial.
func hostAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func (s *Server) waitReady() {
	s.tb.Helper()

	deadline := time.Now().Add(readyBudget)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := s.spy.Status(ctx)
		cancel()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			s.tb.Fatalf("test server did not answer within %s: %v", readyBudget, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// BaseURL returns the address to point the code under test at.
func (s *Server) BaseURL() string {
	return s.spy.BaseURL()
}

// Port returns the bound port.
func (s *Server) Port() int {
	return s.spy.Server().Port()
}

// Spy returns the bound control client, for anything the fluent
// helpers do not cover.
func (s *Server) Spy() *spy.Spy {
	return s.spy
}

// Engine returns the underlying server. Most tests should not need it.
func (s *Server) Engine() *engine.Server {
	return s.eng
}

// Double registers a canned response and returns its id, failing the
// test on rejection.
func (s *Server) Double(pattern, body string, opts ...spy.DoubleOption) string {
	s.tb.Helper()

	id, err := s.spy.Double(context.Background(), pattern, body, opts...)
	if err != nil {
		s.tb.Fatalf("double %q: %v", pattern, err)
	}
	return id
}

// Proxy registers a pass-through to target and returns its id, failing
// the test on rejection.
func (s *Server) Proxy(pattern, target string) string {
	s.tb.Helper()

	id, err := s.spy.Proxy(context.Background(), pattern, target)
	if err != nil {
		s.tb.Fatalf("proxy %q: %v", pattern, err)
	}
	return id
}

// Unregister removes a registered matchable by id.
func (s *Server) Unregister(id string) {
	s.tb.Helper()

	if err := s.spy.Unregister(context.Background(), id); err != nil {
		s.tb.Fatalf("unregistering %s: %v", id, err)
	}
}

// Reset clears all doubles, proxies, and recordings, for a fresh slate
// between test cases.
func (s *Server) Reset() {
	s.tb.Helper()

	if err := s.spy.Reset(context.Background()); err != nil {
		s.tb.Fatalf("resetting server: %v", err)
	}
}

// Requests returns the recorded entries matching the filter, oldest
// first.
func (s *Server) Requests(f spy.Filter) []spylog.Entry {
	s.tb.Helper()

	entries, err := s.spy.Requests(context.Background(), f)
	if err != nil {
		s.tb.Fatalf("listing requests: %v", err)
	}
	return entries
}

// AssertCalled asserts that an endpoint was called at least once.
// Path segments of the form {name} match any value.
func (s *Server) AssertCalled(t testing.TB, method, path string) {
	t.Helper()

	if count := s.countCalls(method, path); count == 0 {
		t.Errorf("expected %s %s to be called, but it was not", method, path)
	}
}

// AssertNotCalled asserts that an endpoint was never called.
func (s *Server) AssertNotCalled(t testing.TB, method, path string) {
	t.Helper()

	if count := s.countCalls(method, path); count > 0 {
		t.Errorf("expected %s %s to not be called, but it was called %d times", method, path, count)
	}
}

// AssertCalledTimes asserts that an endpoint was called exactly n
// times.
func (s *Server) AssertCalledTimes(t testing.TB, method, path string, times int) {
	t.Helper()

	if count := s.countCalls(method, path); count != times {
		t.Errorf("expected %s %s to be called %d times, but was called %d times", method, path, times, count)
	}
}

func (s *Server) countCalls(method, path string) int {
	s.tb.Helper()

	entries := s.Requests(spy.Filter{Method: method})
	count := 0
	for _, e := range entries {
		if matchesPath(endpointPath(e.Endpoint), path) {
			count++
		}
	}
	return count
}

// endpointPath strips the query string off a recorded endpoint.
func endpointPath(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

// matchesPath reports whether a request path matches the expected one,
// where {name} segments match any value.
func matchesPath(actual, expected string) bool {
	if actual == expected {
		return true
	}

	actualParts := strings.Split(actual, "/")
	expectedParts := strings.Split(expected, "/")
	if len(actualParts) != len(expectedParts) {
		return false
	}

	for i := range expectedParts {
		exp := expectedParts[i]
		if strings.HasPrefix(exp, "{") && strings.HasSuffix(exp, "}") {
			continue
		}
		if exp != actualParts[i] {
			return false
		}
	}
	return true
}
