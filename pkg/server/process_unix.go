//go:build !windows

package server

import (
	"syscall"
	"time"
)

// terminateGrace is how long a child gets to exit after SIGTERM before
// it is killed.
const terminateGrace = 2 * time.Second

// Stop sends SIGTERM and escalates to SIGKILL after the grace period.
func (p *execProcess) Stop() error {
	if p.exited() {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return p.kill()
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(terminateGrace):
		return p.kill()
	}
}
