// Package guards implements preflight checks run before every package
// manager invocation.
//
// A guard detects an unrecoverable precondition (exhausted disk, no
// network path to the repositories) before the transaction starts, so the
// stage can fail fast with an actionable category instead of a dnf error
// buried in stderr.
package guards

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// Sentinel errors for guard failure classification.
var (
	// ErrNoSpace indicates the filesystem hosting the state directory is
	// below the required reserve.
	ErrNoSpace = errors.New("not enough free disk space")

	// ErrNoConnection indicates none of the probe addresses were reachable.
	ErrNoConnection = errors.New("no network connectivity")
)

// Guard is a single preflight check. A nil return means the precondition
// holds.
type Guard func() error

// Run evaluates guards in order and returns the first failure.
func Run(gs ...Guard) error {
	for _, g := range gs {
		if g == nil {
			continue
		}
		if err := g(); err != nil {
			return err
		}
	}
	return nil
}

// SpaceGuard checks that the filesystem hosting path has at least
// reserveBytes of free space available to unprivileged writes.
func SpaceGuard(path string, reserveBytes uint64) Guard {
	return func() error {
		var st syscall.Statfs_t
		if err := syscall.Statfs(path, &st); err != nil {
			return fmt.Errorf("statfs %s: %w", path, err)
		}
		free := st.Bavail * uint64(st.Bsize)
		if free < reserveBytes {
			return fmt.Errorf("%w: %d bytes available on %s, %d required",
				ErrNoSpace, free, path, reserveBytes)
		}
		return nil
	}
}

// ConnectionGuard checks that at least one of the given host:port
// addresses accepts a TCP connection within the timeout. An empty address
// list passes: connectivity is then left to dnf to report.
func ConnectionGuard(addrs []string, timeout time.Duration) Guard {
	return func() error {
		if len(addrs) == 0 {
			return nil
		}
		var lastErr error
		for _, addr := range addrs {
			conn, err := net.DialTimeout("tcp", addr, timeout)
			if err != nil {
				lastErr = err
				continue
			}
			_ = conn.Close()
			return nil
		}
		return fmt.Errorf("%w: %d addresses probed, last error: %v",
			ErrNoConnection, len(addrs), lastErr)
	}
}
