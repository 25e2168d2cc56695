package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/roach88/flywheel/internal/errs"
	"github.com/roach88/flywheel/internal/todo"
)

var (
	// ErrSymlink is wrapped by the validation error for a store path that is
	// a symbolic link.
	ErrSymlink = errors.New("is a symbolic link")

	// ErrTooLarge is wrapped by the validation error for a file over the
	// size ceiling.
	ErrTooLarge = errors.New("file too large")

	// ErrInsecurePermissions is wrapped by the validation error for a file
	// accessible to other users.
	ErrInsecurePermissions = errors.New("insecure file permissions")
)

// snapshot is the result of one locked read.
type snapshot struct {
	todos  []todo.Todo
	raw    []byte
	exists bool
	cached bool
}

// readLocked loads the file. The caller holds both locks.
//
// Checks run on the opened descriptor, not on a path looked up earlier:
// Lstat rejects symlinks and non-regular files, O_NOFOLLOW prevents a swap
// between Lstat and open, and Fstat plus a bounded read give the size and
// permissions of the bytes actually read.
func (s *Store) readLocked(ctx context.Context, op string) (snapshot, error) {
	var snap snapshot
	err := retryTransient(ctx, s.log, op, func() error {
		var err error
		snap, err = s.readOnce(op)
		return err
	})
	return snap, err
}

func (s *Store) readOnce(op string) (snapshot, error) {
	lfi, err := os.Lstat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot{todos: []todo.Todo{}}, nil
	}
	if err != nil {
		return snapshot{}, errs.IO(op, s.path, fmt.Errorf("lstat: %w", err))
	}
	if err := checkFileType(op, s.path, lfi); err != nil {
		return snapshot{}, err
	}

	f, err := openNoFollow(s.path)
	switch {
	case errors.Is(err, ErrSymlink):
		return snapshot{}, errs.ValidationWrap(op, s.path, err, "refusing to follow symbolic link")
	case errors.Is(err, fs.ErrNotExist):
		return snapshot{todos: []todo.Todo{}}, nil
	case err != nil:
		return snapshot{}, errs.IO(op, s.path, fmt.Errorf("open: %w", err))
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return snapshot{}, errs.IO(op, s.path, fmt.Errorf("fstat: %w", err))
	}
	if err := checkFileType(op, s.path, fi); err != nil {
		return snapshot{}, err
	}
	if err := checkPermissions(op, s.path, fi, s.cfg.StrictPermissions); err != nil {
		return snapshot{}, err
	}

	key := keyOf(fi)
	if s.cfg.Cache {
		if todos, ok := s.cache.get(key); ok {
			return snapshot{todos: todos, exists: true, cached: true}, nil
		}
	}

	data, err := readLimited(f, s.cfg.MaxFileSize)
	if errors.Is(err, ErrTooLarge) {
		return snapshot{}, errs.ValidationWrap(op, s.path, err, "more than %d bytes", s.cfg.MaxFileSize)
	}
	if err != nil {
		return snapshot{}, errs.IO(op, s.path, fmt.Errorf("read: %w", err))
	}

	todos, err := decode(s.path, data)
	if err != nil {
		return snapshot{}, err
	}
	if s.cfg.Cache {
		s.cache.put(key, todos)
	}
	return snapshot{todos: todos, raw: data, exists: true}, nil
}

// readLimited reads at most limit bytes and fails if more are available.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}

func checkFileType(op, path string, fi fs.FileInfo) error {
	mode := fi.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		return errs.ValidationWrap(op, path, ErrSymlink, "refusing to follow symbolic link")
	case mode.IsDir():
		return errs.Validation(op, path, "is a directory, not a regular file")
	case !mode.IsRegular():
		return errs.Validation(op, path, "not a regular file (mode %s)", mode.Type())
	}
	return nil
}
