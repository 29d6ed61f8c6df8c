package server

import (
	"context"
	"errors"
	"os"
	"os/exec"
)

// Process is a handle on a spawned server binary.
type Process interface {
	// Stop terminates the process, forcefully if it will not exit on
	// its own.
	Stop() error
	// Done is closed once the process has exited. The first receive
	// yields the exit error, if any.
	Done() <-chan error
}

// Runner spawns server binaries. Tests substitute fakes; everything
// else uses NewExecRunner.
type Runner interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

type execRunner struct{}

// NewExecRunner returns a Runner backed by os/exec. Spawned processes
// share the parent's stdout and stderr, so the child server's logs
// land in the test output.
func NewExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Start(_ context.Context, name string, args ...string) (Process, error) {
	// The child outlives the ctx that started it, so plain Command
	// rather than CommandContext.
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, done: make(chan error, 1)}
	go func() {
		p.done <- cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan error
}

func (p *execProcess) Done() <-chan error {
	return p.done
}

func (p *execProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// kill force-stops the process and waits for it to be reaped.
func (p *execProcess) kill() error {
	err := p.cmd.Process.Kill()
	<-p.done
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
