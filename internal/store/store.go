package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/flywheel/internal/coop"
	"github.com/roach88/flywheel/internal/errs"
	"github.com/roach88/flywheel/internal/hybridlock"
	"github.com/roach88/flywheel/internal/idalloc"
	"github.com/roach88/flywheel/internal/todo"
)

// ErrNotFound is returned by Modify and Remove for an id that is not stored.
var ErrNotFound = errors.New("todo not found")

// ErrClosed is wrapped by the error returned from operations after Close.
var ErrClosed = errors.New("store closed")

// Store is the atomic, lock-guarded persistence layer for the todo set.
//
// Thread-safety: all methods are safe for concurrent use from goroutines and
// from coop tasks. Inside a task, locks are taken with the cooperative
// convention and file I/O runs with the task's baton released.
type Store struct {
	cfg      Config
	path     string
	dir      string
	lockPath string
	log      *slog.Logger

	lock  *hybridlock.Lock
	alloc *idalloc.Allocator
	cache loadCache
	write writeFunc

	closed atomic.Bool
}

// Open validates cfg and returns a Store. The path is resolved and checked
// for traversal here, before any file is touched; the directory is created
// lazily by the first locked operation.
func Open(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	path, err := resolvePath(cfg.Path, cfg.Root)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if p, ok := fileInTheWay(dir); ok {
		return nil, errs.Validation(OpOpen, p, "%q exists as a file, not a directory", p)
	}

	s := &Store{
		cfg:      cfg,
		path:     path,
		dir:      dir,
		lockPath: path + ".lock",
		log:      cfg.Logger.With("store", path),
		alloc:    idalloc.New(),
		write:    writeAll,
	}
	s.lock = hybridlock.New(hybridlock.Options{
		Name:           path,
		DefaultTimeout: cfg.LockTimeout,
		Logger:         cfg.Logger,
	})
	return s, nil
}

// Path returns the resolved absolute path of the store file.
func (s *Store) Path() string {
	return s.path
}

// Close releases the in-process lock. Pending operations fail; later ones
// return an error wrapping ErrClosed. Safe to call multiple times.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cache.invalidate()
	return s.lock.Close()
}

// NextID returns the id the next insert would receive, without reserving it.
func (s *Store) NextID() int64 {
	return s.alloc.Peek()
}

// LockStats returns the in-process lock statistics.
func (s *Store) LockStats() hybridlock.Stats {
	return s.lock.Stats()
}

// ResetLockStats zeroes the in-process lock statistics.
func (s *Store) ResetLockStats() {
	s.lock.ResetStats()
}

// InvalidateCache drops the cached load result.
func (s *Store) InvalidateCache() {
	s.cache.invalidate()
}

// Load returns the stored todos, or an empty slice if the file does not
// exist. The watermark is reset from the loaded ids.
func (s *Store) Load(ctx context.Context) ([]todo.Todo, error) {
	op := s.begin(OpLoad)
	var snap snapshot
	err := s.locked(ctx, OpLoad, func() error {
		var err error
		snap, err = s.readLocked(ctx, OpLoad)
		if err != nil {
			return err
		}
		s.alloc.Reset(ids(snap.todos))
		return nil
	})
	op.count, op.cached = len(snap.todos), snap.cached
	s.finish(ctx, op, err)
	if err != nil {
		return nil, err
	}
	return snap.todos, nil
}

// Save replaces the stored set with todos using the configured durability.
// Entries with ID 0 are assigned fresh ids in place.
func (s *Store) Save(ctx context.Context, todos []todo.Todo) error {
	return s.SaveWith(ctx, todos, SaveOptions{Durable: *s.cfg.Durable})
}

// SaveWith is Save with per-call options.
func (s *Store) SaveWith(ctx context.Context, todos []todo.Todo, opts SaveOptions) error {
	op := s.begin(OpSave)
	op.count = len(todos)
	err := s.prepare(OpSave, todos)
	if err == nil {
		err = s.locked(ctx, OpSave, func() error {
			return s.saveLocked(ctx, todos, nil, opts.Durable)
		})
	}
	s.finish(ctx, op, err)
	return err
}

// Update loads the stored set, passes it to fn and saves what fn returns,
// holding both locks throughout. Entries returned with ID 0 are assigned
// fresh ids. If fn returns an error nothing is written and the error is
// returned unchanged.
func (s *Store) Update(ctx context.Context, fn func(todos []todo.Todo) ([]todo.Todo, error)) ([]todo.Todo, error) {
	op := s.begin(OpUpdate)
	var out []todo.Todo
	err := s.locked(ctx, OpUpdate, func() error {
		snap, err := s.readLocked(ctx, OpUpdate)
		if err != nil {
			return err
		}
		s.alloc.Reset(ids(snap.todos))

		// The callback runs with the task's baton held again, so it does not
		// interleave with other tasks of the scheduler.
		var next []todo.Todo
		err = coop.WithBaton(ctx, func() error {
			var ferr error
			next, ferr = fn(snap.todos)
			return ferr
		})
		if err != nil {
			return err
		}
		if err := s.prepare(OpUpdate, next); err != nil {
			return err
		}
		if err := s.saveLocked(ctx, next, snap.raw, *s.cfg.Durable); err != nil {
			return err
		}
		out = next
		return nil
	})
	op.count = len(out)
	s.finish(ctx, op, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Add stores t and returns it with its id. A zero ID is assigned from the
// watermark; a preset ID must not already be stored.
func (s *Store) Add(ctx context.Context, t todo.Todo) (todo.Todo, error) {
	var added todo.Todo
	_, err := s.Update(ctx, func(todos []todo.Todo) ([]todo.Todo, error) {
		if t.ID != 0 && slices.ContainsFunc(todos, t.Equal) {
			return nil, errs.Validation(OpUpdate, s.path, "duplicate id %d", t.ID)
		}
		if t.ID == 0 {
			t.ID = s.alloc.Next()
		}
		added = t
		return append(todos, t), nil
	})
	if err != nil {
		return todo.Todo{}, err
	}
	return added, nil
}

// Modify applies fn to the stored entry with id and saves the result.
func (s *Store) Modify(ctx context.Context, id int64, fn func(t *todo.Todo) error) (todo.Todo, error) {
	var modified todo.Todo
	_, err := s.Update(ctx, func(todos []todo.Todo) ([]todo.Todo, error) {
		i := slices.IndexFunc(todos, func(t todo.Todo) bool { return t.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		if err := fn(&todos[i]); err != nil {
			return nil, err
		}
		todos[i].ID = id
		modified = todos[i]
		return todos, nil
	})
	if err != nil {
		return todo.Todo{}, err
	}
	return modified, nil
}

// Remove deletes the entry with id and returns it.
func (s *Store) Remove(ctx context.Context, id int64) (todo.Todo, error) {
	var removed todo.Todo
	_, err := s.Update(ctx, func(todos []todo.Todo) ([]todo.Todo, error) {
		i := slices.IndexFunc(todos, func(t todo.Todo) bool { return t.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		removed = todos[i]
		return slices.Delete(todos, i, i+1), nil
	})
	if err != nil {
		return todo.Todo{}, err
	}
	return removed, nil
}

// prepare validates todos and assigns ids to entries with ID 0. Duplicate
// ids are rejected, which is the final collision guard before a write.
func (s *Store) prepare(op string, todos []todo.Todo) error {
	for _, t := range todos {
		s.alloc.Observe(t.ID)
	}
	seen := make(map[int64]int, len(todos))
	for i := range todos {
		t := &todos[i]
		if err := t.Validate(); err != nil {
			return errs.ValidationWrap(op, s.path, err, "entry %d", i)
		}
		if t.ID == 0 {
			t.ID = s.alloc.Next()
		}
		if first, dup := seen[t.ID]; dup {
			return errs.Validation(op, s.path, "entries %d and %d share id %d", first, i, t.ID)
		}
		seen[t.ID] = i
	}
	return nil
}

// saveLocked writes todos. The caller holds both locks. current is the file
// content already read under the same locks, or nil.
func (s *Store) saveLocked(ctx context.Context, todos []todo.Todo, current []byte, durable bool) error {
	data, err := encode(todos, s.cfg.CompactThreshold)
	if err != nil {
		return errs.IO(OpSave, s.path, err)
	}
	if err := ensureDir(OpSave, s.dir); err != nil {
		return err
	}
	s.sweepTemps()
	if s.cfg.Backup {
		s.backup(ctx, current)
	}

	s.cache.invalidate()
	err = retryTransient(ctx, s.log, OpSave, func() error {
		return s.writeAtomic(OpSave, s.path, data, durable)
	})
	if err != nil {
		return err
	}
	s.log.Debug("store file replaced", "path", s.path, "bytes", len(data), "durable", durable)
	return nil
}

// locked runs fn holding the in-process lock and then the OS file lock.
// Both waits share one LockTimeout budget. Inside a coop task the file work
// runs with the task's baton released.
func (s *Store) locked(ctx context.Context, op string, fn func() error) error {
	if s.closed.Load() {
		return fmt.Errorf("%s %s: %w", op, s.path, ErrClosed)
	}

	deadline := time.Now().Add(s.cfg.LockTimeout)
	g, err := s.lock.Acquire(ctx, s.cfg.LockTimeout)
	if err != nil {
		var le *errs.Error
		if errors.As(err, &le) && le.Code == errs.CodeTimeout {
			return errs.Timeout(op, s.path, le.Timeout, fmt.Errorf("%w: in-process lock busy", ErrLockNotAcquired))
		}
		if errors.Is(err, hybridlock.ErrClosed) {
			return fmt.Errorf("%s %s: %w", op, s.path, ErrClosed)
		}
		return err
	}
	defer func() {
		if rerr := g.Release(); rerr != nil {
			s.log.Error("lock release failed", "op", op, "error", rerr)
		}
	}()

	return coop.Offload(ctx, func() error {
		if err := ensureDir(op, s.dir); err != nil {
			return err
		}
		fl, err := acquireFileLock(ctx, op, s.lockPath, deadline, s.cfg.LockTimeout)
		if err != nil {
			return err
		}
		defer func() {
			if rerr := fl.Release(); rerr != nil {
				s.log.Warn("file lock release failed", "op", op, "path", s.lockPath, "error", rerr)
			}
		}()
		return fn()
	})
}

type opRecord struct {
	id     string
	name   string
	start  time.Time
	count  int
	cached bool
}

func (s *Store) begin(name string) *opRecord {
	return &opRecord{
		id:    uuid.Must(uuid.NewV7()).String(),
		name:  name,
		start: time.Now(),
	}
}

// finish logs the operation and notifies observers.
func (s *Store) finish(ctx context.Context, op *opRecord, err error) {
	d := time.Since(op.start)
	attrs := []any{"op", op.name, "op_id", op.id, "path", s.path, "count", op.count, "duration", d}
	if op.cached {
		attrs = append(attrs, "cached", true)
	}
	if err != nil {
		s.log.Debug("store operation failed", append(attrs, "error", err)...)
	} else {
		s.log.Debug("store operation", attrs...)
	}
	if s.cfg.SlowThreshold > 0 && d > s.cfg.SlowThreshold {
		s.log.Warn("slow store operation", attrs...)
	}

	ev := Event{
		ID:       op.id,
		Op:       op.name,
		Path:     s.path,
		Count:    op.count,
		Started:  op.start,
		Duration: d,
		Cached:   op.cached,
		Err:      err,
	}
	for _, o := range s.cfg.Observers {
		o.ObserveStoreEvent(ctx, ev)
	}
}

func ids(todos []todo.Todo) []int64 {
	out := make([]int64, len(todos))
	for i, t := range todos {
		out[i] = t.ID
	}
	return out
}
