//go:build windows

package server

// Windows has no SIGTERM, so Stop kills the process outright.
func (p *execProcess) Stop() error {
	if p.exited() {
		return nil
	}
	return p.kill()
}
