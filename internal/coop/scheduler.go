// Package coop implements a cooperative task scheduler.
//
// A Scheduler runs tasks one at a time: a task must hold the scheduler's
// baton to execute, and it only gives the baton up when it suspends (waits on
// something through Suspend, Offload or Yield) or returns. Between suspension
// points a task therefore runs without interleaving with the other tasks of the
// same scheduler, which is the single-threaded event-loop model.
//
// Any number of schedulers can exist in one process. Tasks of different
// schedulers run in parallel with each other, the same way independent event
// loops on separate worker threads do.
//
// Code that needs to know whether it is being driven by a scheduler asks
// FromContext. The task is carried in the context passed to the task function,
// so the capability query is explicit and never relies on goroutine identity.
package coop

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrSchedulerClosed is returned by tasks started after Close.
	ErrSchedulerClosed = errors.New("coop: scheduler closed")

	// ErrNestedRun is returned when a task tries to synchronously drive its
	// own scheduler. The outer task holds the baton, so the inner task could
	// never start.
	ErrNestedRun = errors.New("coop: task cannot synchronously run on its own scheduler")
)

var (
	schedulerSeq atomic.Uint64
	taskSeq      atomic.Uint64
)

// Scheduler drives cooperative tasks.
//
// Thread-safety: all methods are safe for concurrent use.
type Scheduler struct {
	id   uint64
	name string

	// baton holds one token while no task is running.
	baton chan struct{}

	mu     sync.Mutex
	closed bool
	tasks  sync.WaitGroup

	done      chan struct{}
	closeOnce sync.Once
}

// NewScheduler creates an idle scheduler.
func NewScheduler(name string) *Scheduler {
	s := &Scheduler{
		id:    schedulerSeq.Add(1),
		name:  name,
		baton: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	s.baton <- struct{}{}
	return s
}

// ID returns the process-unique scheduler identity.
func (s *Scheduler) ID() uint64 {
	return s.id
}

// Name returns the name given at construction.
func (s *Scheduler) Name() string {
	return s.name
}

// Done is closed once Close has returned.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Go starts fn as a task. fn receives a context from which FromContext
// returns the new task.
//
// The task waits for the baton; if ctx is cancelled first, the task finishes
// with ctx.Err() without running fn.
func (s *Scheduler) Go(ctx context.Context, fn func(ctx context.Context) error) *Task {
	t := &Task{
		sched: s,
		id:    taskSeq.Add(1),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.err = ErrSchedulerClosed
		close(t.done)
		return t
	}
	s.tasks.Add(1)
	s.mu.Unlock()

	go s.run(ctx, t, fn)
	return t
}

// Run starts fn as a task and waits for it to finish.
//
// Calling Run from a task of the same scheduler returns ErrNestedRun instead
// of deadlocking.
func (s *Scheduler) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if cur, ok := FromContext(ctx); ok && cur.sched == s {
		return ErrNestedRun
	}
	return s.Go(ctx, fn).Wait()
}

// Close rejects new tasks and waits for running ones to finish.
// Safe to call multiple times. Must not be called from one of s's own tasks.
func (s *Scheduler) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.tasks.Wait()
		close(s.done)
	})
	return nil
}

func (s *Scheduler) run(ctx context.Context, t *Task, fn func(ctx context.Context) error) {
	defer s.tasks.Done()
	defer close(t.done)

	select {
	case <-s.baton:
	case <-ctx.Done():
		t.err = ctx.Err()
		return
	}
	t.holding.Store(true)
	defer func() {
		if t.holding.CompareAndSwap(true, false) {
			s.release()
		}
	}()

	t.err = call(context.WithValue(ctx, taskKey{}, t), fn)
}

func call(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("coop: task panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) acquire() {
	<-s.baton
}

func (s *Scheduler) release() {
	s.baton <- struct{}{}
}

// Task is one unit of cooperative work.
type Task struct {
	sched *Scheduler
	id    uint64
	done  chan struct{}
	err   error

	// holding is true while the task owns its scheduler's baton.
	holding atomic.Bool
}

// ID returns the process-unique task identity.
func (t *Task) ID() uint64 {
	return t.id
}

// Scheduler returns the scheduler driving t.
func (t *Task) Scheduler() *Scheduler {
	return t.sched
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

type taskKey struct{}

// FromContext reports whether ctx belongs to a cooperative task and returns
// that task.
func FromContext(ctx context.Context) (*Task, bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok := ctx.Value(taskKey{}).(*Task)
	return t, ok
}

// Suspend runs wait with the caller's baton released, letting the other
// tasks of the scheduler run meanwhile, and takes the baton back before
// returning (also when wait panics).
//
// Outside a task, or inside a task that has already given up its baton (for
// example within Offload), Suspend simply calls wait.
func Suspend(ctx context.Context, wait func() error) error {
	t, ok := FromContext(ctx)
	if !ok || !t.holding.CompareAndSwap(true, false) {
		return wait()
	}
	t.sched.release()
	defer func() {
		t.sched.acquire()
		t.holding.Store(true)
	}()
	return wait()
}

// WithBaton runs fn holding the task's baton. Inside Offload or Suspend this
// takes the baton back for the duration of fn, so fn does not interleave with
// the scheduler's other tasks; fn may itself suspend again. When the task
// already holds the baton, or outside a task, fn is called directly.
func WithBaton(ctx context.Context, fn func() error) error {
	t, ok := FromContext(ctx)
	if !ok || t.holding.Load() {
		return fn()
	}
	t.sched.acquire()
	t.holding.Store(true)
	defer func() {
		if t.holding.CompareAndSwap(true, false) {
			t.sched.release()
		}
	}()
	return fn()
}

// Offload runs blocking work such as file I/O without holding the baton.
func Offload(ctx context.Context, fn func() error) error {
	return Suspend(ctx, fn)
}

// Yield gives the other runnable tasks of the scheduler a turn.
func Yield(ctx context.Context) {
	_ = Suspend(ctx, func() error {
		runtime.Gosched()
		return nil
	})
}
