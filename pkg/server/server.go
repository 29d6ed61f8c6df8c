// Package server manages the lifecycle of restspy servers from test
// code: spawning a local child process, attaching to an external one,
// and keeping a port registry so no two servers claim the same port.
package server

import "context"

// Server is one controllable restspy server. Tests talk to its control
// API through the HTTP verbs; Start and Stop bracket its lifetime.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Port() int
	BaseURL() string

	Get(ctx context.Context, endpoint string) ([]byte, error)
	Post(ctx context.Context, endpoint string, body []byte) ([]byte, error)
	Delete(ctx context.Context, endpoint string) ([]byte, error)
}
