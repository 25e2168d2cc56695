// Package hybridlock provides a mutual-exclusion lock reachable through two
// call conventions that share one critical section:
//
//   - Lock blocks the calling goroutine until the lock is free or a timeout
//     elapses. It must not be used from a cooperative task.
//   - LockSuspend is for cooperative tasks (package coop). The task gives its
//     scheduler's baton back while it waits, so the other tasks of that
//     scheduler keep running.
//
// At most one holder of either kind is inside the critical section at a time,
// no matter how many schedulers exist. Waiters of both kinds queue in one FIFO.
//
// # Cancellation
//
// A waiter whose timeout elapses leaves the queue before returning. If the
// lock was handed to it at the same instant, it hands the lock on instead of
// keeping it, so no later acquisition ever inherits a grant nobody holds.
//
// # Wake resources
//
// The lock keeps one wake resource per scheduler that has suspended on it,
// keyed by scheduler identity. Close cancels every one of them, which fails
// all pending waits with ErrClosed. Wake resources never point back at the
// lock.
package hybridlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/flywheel/internal/coop"
	"github.com/roach88/flywheel/internal/errs"
)

// DefaultTimeout bounds acquisitions that do not specify their own timeout.
const DefaultTimeout = 10 * time.Second

const (
	opAcquire = "acquire"
	opRelease = "release"
)

// ErrClosed is wrapped by errors returned from acquisitions on a closed lock.
var ErrClosed = errors.New("hybridlock: lock closed")

// Options configures a Lock.
type Options struct {
	// Name identifies the lock in errors and logs.
	Name string

	// DefaultTimeout applies when an acquisition passes a timeout <= 0.
	DefaultTimeout time.Duration

	// Logger receives debug events. Nil discards them.
	Logger *slog.Logger
}

// Lock is the hybrid mutual-exclusion primitive.
//
// Thread-safety: all methods are safe for concurrent use from any goroutine
// and any number of schedulers.
type Lock struct {
	name           string
	defaultTimeout time.Duration
	logger         *slog.Logger

	sem *semaphore.Weighted

	// base is cancelled by Close; blocking waits derive from it.
	base       context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	closed bool
	held   bool
	holder *coop.Task
	wakers map[uint64]*waker

	statsMu sync.Mutex
	stats   Stats
}

// waker is the per-scheduler wake resource.
type waker struct {
	ctx       context.Context
	cancel    context.CancelFunc
	schedDone <-chan struct{}
	waiting   int
}

// New creates an unlocked Lock.
func New(opts Options) *Lock {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Name == "" {
		opts.Name = "hybridlock"
	}
	base, cancel := context.WithCancel(context.Background())
	return &Lock{
		name:           opts.Name,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
		sem:            semaphore.NewWeighted(1),
		base:           base,
		cancelBase:     cancel,
		wakers:         make(map[uint64]*waker),
	}
}

// Name returns the lock's name.
func (l *Lock) Name() string {
	return l.name
}

// Held reports whether some caller currently holds the lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Lock acquires the lock with the blocking convention.
//
// Returns a CodeMisuse error without waiting when ctx belongs to a
// cooperative task, and a CodeTimeout error carrying the bound when timeout
// (or the default timeout if timeout <= 0) elapses first. Cancellation of ctx
// itself is returned as the wrapped context error.
func (l *Lock) Lock(ctx context.Context, timeout time.Duration) (*Guard, error) {
	if task, ok := coop.FromContext(ctx); ok {
		return nil, errs.Misuse(opAcquire,
			"blocking acquire of %q from cooperative task %d on scheduler %q; use LockSuspend",
			l.name, task.ID(), task.Scheduler().Name())
	}
	if timeout <= 0 {
		timeout = l.defaultTimeout
	}
	if l.isClosed() {
		return nil, l.closedError()
	}

	start := time.Now()
	if l.sem.TryAcquire(1) {
		return l.grant(nil, start, false), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(l.base, cancel)
	defer stop()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		return nil, l.acquireFailed(ctx, timeout, start)
	}
	return l.grant(nil, start, true), nil
}

// LockSuspend acquires the lock with the cooperative convention. ctx must
// belong to a coop task; the task's scheduler keeps running other tasks while
// this one waits.
//
// Acquiring again from the task that already holds the lock fails fast with a
// CodeMisuse error instead of hanging.
func (l *Lock) LockSuspend(ctx context.Context, timeout time.Duration) (*Guard, error) {
	task, ok := coop.FromContext(ctx)
	if !ok {
		return nil, errs.Misuse(opAcquire, "suspend acquire of %q outside a cooperative task; use Lock", l.name)
	}
	if timeout <= 0 {
		timeout = l.defaultTimeout
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, l.closedError()
	}
	if l.holder == task {
		l.mu.Unlock()
		return nil, errs.Misuse(opAcquire, "task %d already holds %q; the lock is not reentrant", task.ID(), l.name)
	}
	w := l.wakerLocked(task.Scheduler())
	w.waiting++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		w.waiting--
		l.mu.Unlock()
	}()

	start := time.Now()
	if l.sem.TryAcquire(1) {
		return l.grant(task, start, false), nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(w.ctx, cancel)
	defer stop()

	err := coop.Suspend(ctx, func() error {
		return l.sem.Acquire(waitCtx, 1)
	})
	if err != nil {
		return nil, l.acquireFailed(ctx, timeout, start)
	}
	return l.grant(task, start, true), nil
}

// Acquire picks the convention from ctx: LockSuspend inside a cooperative
// task, Lock everywhere else.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) (*Guard, error) {
	if _, ok := coop.FromContext(ctx); ok {
		return l.LockSuspend(ctx, timeout)
	}
	return l.Lock(ctx, timeout)
}

// Close fails all pending and future acquisitions with ErrClosed and tears
// down the per-scheduler wake resources. Current holders may still release.
// Safe to call multiple times.
func (l *Lock) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	wakers := l.wakers
	l.wakers = nil
	l.mu.Unlock()

	l.cancelBase()
	for _, w := range wakers {
		w.cancel()
	}
	l.logger.Debug("lock closed", "lock", l.name, "schedulers", len(wakers))
	return nil
}

func (l *Lock) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Lock) closedError() error {
	return &errs.Error{
		Code:    errs.CodeMisuse,
		Op:      opAcquire,
		Message: l.name + " used after Close",
		Err:     ErrClosed,
	}
}

// wakerLocked returns the wake resource for sched, creating it on first use.
// Resources of finished schedulers with no waiters are dropped on the way.
// Must hold l.mu.
func (l *Lock) wakerLocked(sched *coop.Scheduler) *waker {
	for id, w := range l.wakers {
		if id == sched.ID() || w.waiting > 0 {
			continue
		}
		select {
		case <-w.schedDone:
			w.cancel()
			delete(l.wakers, id)
		default:
		}
	}

	if w, ok := l.wakers[sched.ID()]; ok {
		return w
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &waker{ctx: ctx, cancel: cancel, schedDone: sched.Done()}
	l.wakers[sched.ID()] = w
	return w
}

// schedulers returns the number of live wake resources.
func (l *Lock) schedulers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.wakers)
}

func (l *Lock) grant(task *coop.Task, start time.Time, contended bool) *Guard {
	waited := time.Since(start)

	l.mu.Lock()
	l.held = true
	l.holder = task
	l.mu.Unlock()

	l.statsMu.Lock()
	l.stats.Acquisitions++
	if task != nil {
		l.stats.SuspendAcquisitions++
	}
	if contended {
		l.stats.Contended++
		l.stats.TotalWait += waited
		if waited > l.stats.MaxWait {
			l.stats.MaxWait = waited
		}
	}
	l.statsMu.Unlock()

	if contended {
		l.logger.Debug("lock acquired after wait", "lock", l.name, "wait", waited, "suspend", task != nil)
	}
	return &Guard{lock: l, task: task}
}

// acquireFailed classifies a failed wait. The semaphore has already removed
// the waiter (or handed back a grant that raced with the cancellation).
//
// A deadline on ctx that is earlier than timeout counts as a timeout with
// that shorter bound.
func (l *Lock) acquireFailed(ctx context.Context, timeout time.Duration, start time.Time) error {
	if l.isClosed() {
		return l.closedError()
	}
	bound := timeout
	if err := ctx.Err(); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("hybridlock: acquire %s: %w", l.name, err)
		}
		if dl, ok := ctx.Deadline(); ok {
			bound = min(bound, max(dl.Sub(start), 0))
		}
	}

	l.statsMu.Lock()
	l.stats.Timeouts++
	l.statsMu.Unlock()

	l.logger.Debug("lock acquire timed out", "lock", l.name, "timeout", bound, "waited", time.Since(start))
	return errs.Timeout(opAcquire, "", bound, context.DeadlineExceeded)
}

func (l *Lock) release() {
	l.mu.Lock()
	l.held = false
	l.holder = nil
	l.mu.Unlock()

	l.sem.Release(1)
}

// Guard is the handle of one successful acquisition. Release it on every
// exit path, typically with defer.
type Guard struct {
	lock     *Lock
	task     *coop.Task
	released atomic.Bool
}

// Release leaves the critical section and wakes the next waiter.
//
// Releasing a zero or nil Guard does nothing. Releasing twice leaves the lock
// untouched and returns a CodeMisuse error.
func (g *Guard) Release() error {
	if g == nil || g.lock == nil {
		return nil
	}
	if !g.released.CompareAndSwap(false, true) {
		return errs.Misuse(opRelease, "guard of %q released twice", g.lock.name)
	}
	g.lock.release()
	return nil
}

// Released reports whether Release has been called.
func (g *Guard) Released() bool {
	if g == nil || g.lock == nil {
		return true
	}
	return g.released.Load()
}
