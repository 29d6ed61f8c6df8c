//go:build !windows

package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_StopTerminatesChild(t *testing.T) {
	runner := NewExecRunner()

	proc, err := runner.Start(context.Background(), "sleep", "30")
	require.NoError(t, err)

	stopped := make(chan error, 1)
	go func() { stopped <- proc.Stop() }()

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(terminateGrace + 3*time.Second):
		t.Fatal("Stop did not return")
	}

	select {
	case <-proc.Done():
		// Reaped.
	case <-time.After(time.Second):
		t.Fatal("process was not reaped")
	}
}

func TestExecRunner_StopAfterExit(t *testing.T) {
	runner := NewExecRunner()

	proc, err := runner.Start(context.Background(), "true")
	require.NoError(t, err)

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child did not exit")
	}

	assert.NoError(t, proc.Stop())
}

func TestExecRunner_StartError(t *testing.T) {
	runner := NewExecRunner()

	_, err := runner.Start(context.Background(), "/nonexistent/restspy-binary")
	assert.Error(t, err)
}
