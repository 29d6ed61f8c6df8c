package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/dmrschmidt/RestSpy/pkg/logging"
)

// Defaults for the readiness poll.
const (
	DefaultReadyBudget  = 3 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// LocalServer spawns and owns a restspy child process on a port. The
// zero value is not usable; construct with NewLocalServer.
type LocalServer struct {
	port     int
	registry *Registry
	client   *Client
	runner   Runner
	log      *slog.Logger

	readyBudget  time.Duration
	pollInterval time.Duration

	executable string
	args       []string

	mu      sync.Mutex
	process Process
}

// LocalServerOption configures a LocalServer.
type LocalServerOption func(*LocalServer)

// WithLogger sets the logger. Without it the server is silent.
func WithLogger(log *slog.Logger) LocalServerOption {
	return func(ls *LocalServer) { ls.log = log }
}

// WithReadyBudget sets how long Start waits for the spawned server to
// answer before giving up.
func WithReadyBudget(d time.Duration) LocalServerOption {
	return func(ls *LocalServer) { ls.readyBudget = d }
}

// WithPollInterval sets the pause between readiness probes.
func WithPollInterval(d time.Duration) LocalServerOption {
	return func(ls *LocalServer) { ls.pollInterval = d }
}

// WithRunner substitutes the process runner.
func WithRunner(r Runner) LocalServerOption {
	return func(ls *LocalServer) { ls.runner = r }
}

// WithCommand overrides the spawned command line. The default is the
// running executable with "-p <port>".
func WithCommand(executable string, args ...string) LocalServerOption {
	return func(ls *LocalServer) {
		ls.executable = executable
		ls.args = args
	}
}

// WithClient substitutes the HTTP client used for the verbs and the
// readiness poll.
func WithClient(c *Client) LocalServerOption {
	return func(ls *LocalServer) { ls.client = c }
}

// NewLocalServer builds a server that will spawn a restspy child on
// port when started. The registry arbitrates port ownership across
// all servers sharing it.
func NewLocalServer(port int, reg *Registry, opts ...LocalServerOption) *LocalServer {
	ls := &LocalServer{
		port:         port,
		registry:     reg,
		runner:       NewExecRunner(),
		log:          logging.Nop(),
		readyBudget:  DefaultReadyBudget,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(ls)
	}
	if ls.executable == "" {
		exe, err := os.Executable()
		if err != nil {
			exe = os.Args[0]
		}
		ls.executable = exe
		ls.args = []string{"-p", strconv.Itoa(port)}
	}
	if ls.client == nil {
		ls.client = NewClient(fmt.Sprintf("http://127.0.0.1:%d", port))
	}
	return ls
}

var _ Server = (*LocalServer)(nil)

// Port returns the port the child listens on.
func (ls *LocalServer) Port() int {
	return ls.port
}

// BaseURL returns the URL the child answers on.
func (ls *LocalServer) BaseURL() string {
	return ls.client.BaseURL()
}

// Start claims the port, spawns the child, and waits for it to answer.
// A port that is already claimed fails with *DuplicatePortError before
// anything is spawned; a child that never answers is stopped again and
// reported as *TimeoutError. Either way a failed Start releases the
// port, so a retry starts fresh.
func (ls *LocalServer) Start(ctx context.Context) error {
	if err := ls.registry.Register(ls); err != nil {
		return err
	}

	proc, err := ls.runner.Start(ctx, ls.executable, ls.args...)
	if err != nil {
		ls.registry.Unregister(ls)
		return fmt.Errorf("spawning %s: %w", ls.executable, err)
	}
	ls.setProcess(proc)

	ls.log.Debug("waiting for server", "port", ls.port, "budget", ls.readyBudget)
	if err := ls.awaitReady(ctx); err != nil {
		if stopErr := proc.Stop(); stopErr != nil {
			ls.log.Debug("stopping unready server", "port", ls.port, "error", stopErr)
		}
		ls.setProcess(nil)
		ls.registry.Unregister(ls)
		return err
	}

	ls.log.Info("server ready", "port", ls.port)
	return nil
}

// awaitReady probes the child until it answers. Any answer counts: the
// probed endpoint has no double registered yet, so a 404 still means
// the server is up.
func (ls *LocalServer) awaitReady(ctx context.Context) error {
	deadline := time.Now().Add(ls.readyBudget)
	for time.Now().Before(deadline) {
		_, err := ls.client.Get(ctx, "/")
		var statusErr *StatusError
		if err == nil || errors.As(err, &statusErr) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ls.pollInterval):
			// Retry
		}
	}
	return &TimeoutError{Port: ls.port, Budget: ls.readyBudget}
}

// Stop releases the port and terminates the child. Stopping a server
// that was never started, or a second time, is a no-op.
func (ls *LocalServer) Stop(ctx context.Context) error {
	if !ls.registry.Unregister(ls) {
		return nil
	}

	proc := ls.takeProcess()
	if proc == nil {
		return nil
	}

	ls.log.Info("stopping server", "port", ls.port)
	if err := proc.Stop(); err != nil {
		return fmt.Errorf("stopping server on port %d: %w", ls.port, err)
	}
	return nil
}

// Get fetches endpoint from the child's control API.
func (ls *LocalServer) Get(ctx context.Context, endpoint string) ([]byte, error) {
	return ls.client.Get(ctx, endpoint)
}

// Post sends body to endpoint on the child's control API.
func (ls *LocalServer) Post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	return ls.client.Post(ctx, endpoint, body)
}

// Delete issues a DELETE against endpoint on the child's control API.
func (ls *LocalServer) Delete(ctx context.Context, endpoint string) ([]byte, error) {
	return ls.client.Delete(ctx, endpoint)
}

func (ls *LocalServer) setProcess(p Process) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.process = p
}

func (ls *LocalServer) takeProcess() Process {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	p := ls.process
	ls.process = nil
	return p
}
