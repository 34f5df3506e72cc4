// Package flock serializes mutating operations against one installation
// using an advisory file lock. A second invocation blocks for a bounded
// retry window and then fails fast rather than interleave writes.
package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrLocked is returned when the lock is held by another live process.
var ErrLocked = errors.New("installation is locked by another process")

// Lock is an acquired installation lock.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes the exclusive lock at path, retrying until ctx is done or
// the retry window elapses. A lock whose owning process is no longer
// alive is taken over.
func Acquire(ctx context.Context, path string, wait time.Duration) (*Lock, error) {
	deadline := time.Now().Add(wait)
	for {
		l, err := tryAcquire(path)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrLocked) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w (lock file %s)", ErrLocked, path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func tryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		if errors.Is(err, ErrLocked) && !ownerAlive(f) {
			// Stale lock left by a dead process; flock would have been
			// released on exit, so reaching here means contention raced a
			// takeover. Retry on the next tick.
			_ = f.Close()
			return nil, ErrLocked
		}
		_ = f.Close()
		return nil, err
	}

	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, fmt.Errorf("failed to truncate lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return nil, fmt.Errorf("failed to write lock owner: %w", err)
	}

	return &Lock{path: path, file: f}, nil
}

// Release drops the lock and removes the lock file.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	cerr := l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	if err != nil {
		return err
	}
	return cerr
}

// ownerAlive reads the PID recorded in the lock file and probes it.
func ownerAlive(f *os.File) bool {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return true // unreadable owner: assume alive
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil || pid <= 0 {
		return true
	}
	return processAlive(pid)
}
