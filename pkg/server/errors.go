package server

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// DuplicatePortError reports an attempt to register a second server on
// a port that already has one.
type DuplicatePortError struct {
	Port int
}

func (e *DuplicatePortError) Error() string {
	return fmt.Sprintf("port %d already has a registered server", e.Port)
}

// TimeoutError reports that a spawned server did not answer on its
// port within the readiness budget.
type TimeoutError struct {
	Port   int
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("server on port %d did not answer within %s", e.Port, e.Budget)
}

// StatusError reports a GET that was answered with a status other
// than 200.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

// IsConnectionFailure reports whether err is a transport-level failure
// (dial refused, reset, timeout) rather than an HTTP answer. The
// readiness loop swallows these while a freshly spawned server is
// still binding its port.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
