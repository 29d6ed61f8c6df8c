package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/dmrschmidt/RestSpy/pkg/logging"
)

// ExternalServer drives a restspy server somebody else started, for
// example one shared by a whole test suite or running in a container.
// Its lifetime is not ours: Start assumes the server is up, and Stop
// only clears the state this suite left behind.
type ExternalServer struct {
	baseURL string
	port    int
	client  *Client
	log     *slog.Logger
}

// ExternalServerOption configures an ExternalServer.
type ExternalServerOption func(*ExternalServer)

// WithExternalLogger sets the logger. Without it the server is silent.
func WithExternalLogger(log *slog.Logger) ExternalServerOption {
	return func(s *ExternalServer) { s.log = log }
}

// WithExternalClient substitutes the HTTP client used for the verbs.
func WithExternalClient(c *Client) ExternalServerOption {
	return func(s *ExternalServer) { s.client = c }
}

// NewExternalServer attaches to the server at baseURL, e.g.
// "http://localhost:4545".
func NewExternalServer(baseURL string, opts ...ExternalServerOption) (*ExternalServer, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", baseURL)
	}

	port, err := portOf(u)
	if err != nil {
		return nil, err
	}

	s := &ExternalServer{
		baseURL: baseURL,
		port:    port,
		log:     logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = NewClient(baseURL)
	}
	return s, nil
}

func portOf(u *url.URL) (int, error) {
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("parsing port in %q: %w", u.String(), err)
		}
		return port, nil
	}
	if u.Scheme == "https" {
		return 443, nil
	}
	return 80, nil
}

var _ Server = (*ExternalServer)(nil)

// Port returns the port parsed from the base URL.
func (s *ExternalServer) Port() int {
	return s.port
}

// BaseURL returns the URL the server answers on.
func (s *ExternalServer) BaseURL() string {
	return s.client.BaseURL()
}

// Start is a no-op: the server is assumed to be running already.
func (s *ExternalServer) Start(ctx context.Context) error {
	return nil
}

// Stop clears the doubles and recordings this suite registered, so
// the next suite finds the server pristine. Cleanup is best-effort:
// failures are logged and swallowed, and the server keeps running.
func (s *ExternalServer) Stop(ctx context.Context) error {
	if _, err := s.client.Delete(ctx, "/doubles"); err != nil {
		s.log.Debug("clearing doubles", "url", s.baseURL, "error", err)
	}
	if _, err := s.client.Delete(ctx, "/spy"); err != nil {
		s.log.Debug("clearing recordings", "url", s.baseURL, "error", err)
	}
	return nil
}

// Get fetches endpoint from the server's control API.
func (s *ExternalServer) Get(ctx context.Context, endpoint string) ([]byte, error) {
	return s.client.Get(ctx, endpoint)
}

// Post sends body to endpoint on the server's control API.
func (s *ExternalServer) Post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	return s.client.Post(ctx, endpoint, body)
}

// Delete issues a DELETE against endpoint on the server's control API.
func (s *ExternalServer) Delete(ctx context.Context, endpoint string) ([]byte, error) {
	return s.client.Delete(ctx, endpoint)
}
