package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/roach88/flywheel/internal/errs"
)

// ErrLockNotAcquired is wrapped by the timeout error returned when the OS
// file lock stays held by another process past the lock timeout.
var ErrLockNotAcquired = errors.New("file lock not acquired")

// errLockBusy is returned by tryLock when another holder has the range.
var errLockBusy = errors.New("file lock busy")

const (
	lockPollInitial = 5 * time.Millisecond
	lockPollMax     = 100 * time.Millisecond
)

// fileLock is an exclusive advisory lock on a sidecar file. The lock covers
// the whole sidecar, independent of the data file's size.
type fileLock struct {
	path string
	f    *os.File
}

// acquireFileLock polls a non-blocking lock attempt with backoff until it
// succeeds, ctx ends, or deadline passes. At least one attempt is made even
// when deadline is already past. bound is the timeout reported on failure.
// op names the store operation on whose behalf the lock is taken.
func acquireFileLock(ctx context.Context, op, path string, deadline time.Time, bound time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errs.IO(op, path, fmt.Errorf("open lock file: %w", err))
	}

	delay := lockPollInitial
	for {
		err := tryLock(f)
		if err == nil {
			return &fileLock{path: path, f: f}, nil
		}
		if !errors.Is(err, errLockBusy) {
			f.Close()
			return nil, errs.IO(op, path, fmt.Errorf("lock: %w", err))
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			f.Close()
			return nil, errs.Timeout(op, path, bound, ErrLockNotAcquired)
		}
		wait := min(delay, remaining)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			f.Close()
			return nil, fmt.Errorf("%s: waiting for %s: %w", op, path, ctx.Err())
		case <-t.C:
		}
		delay = min(delay*2, lockPollMax)
	}
}

// Release unlocks and closes the sidecar. Safe to call on nil.
func (l *fileLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	uerr := unlock(l.f)
	cerr := l.f.Close()
	l.f = nil
	return errors.Join(uerr, cerr)
}
