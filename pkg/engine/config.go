package engine

import (
	"time"

	"github.com/dmrschmidt/RestSpy/pkg/spylog"
)

// DefaultPort is where a restspy server listens when nothing else is
// asked for.
const DefaultPort = 4545

// Config carries the engine's settings.
type Config struct {
	// Port the server listens on. Zero picks an ephemeral port, which
	// is how in-process test servers run.
	Port int

	// ReadTimeout and WriteTimeout bound each served request.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// SpyCapacity is how many recorded exchanges are kept before the
	// oldest are dropped.
	SpyCapacity int
}

// DefaultConfig returns the settings used when no config is given.
func DefaultConfig() *Config {
	return &Config{
		Port:         DefaultPort,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		SpyCapacity:  spylog.DefaultCapacity,
	}
}
