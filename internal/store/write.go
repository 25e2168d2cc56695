package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/flywheel/internal/errs"
)

// staleTempAge is how old a leftover temporary file must be before a save
// removes it. Younger ones may belong to a writer that is still running.
const staleTempAge = time.Minute

// writeFunc writes the payload to the temporary file. Tests swap it to
// simulate failures.
type writeFunc func(f *os.File, data []byte) error

func writeAll(f *os.File, data []byte) error {
	// os.File.Write retries EINTR and loops over short writes internally; a
	// short count without an error is still reported.
	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	return err
}

// writeAtomic replaces target with data via a temporary file in the same
// directory. On every failure path the temporary file is closed once and
// removed, and target is untouched.
func (s *Store) writeAtomic(op, target string, data []byte, durable bool) (err error) {
	dir := filepath.Dir(target)
	f, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return errs.IO(op, target, fmt.Errorf("create temp file: %w", err))
	}
	tmp := f.Name()

	closed := false
	defer func() {
		if !closed {
			f.Close()
		}
		if err != nil {
			if rerr := os.Remove(tmp); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
				s.log.Warn("failed to remove temp file", "op", op, "path", tmp, "error", rerr)
			}
		}
	}()

	// CreateTemp already uses 0600; set it explicitly so a permissive umask
	// or platform default cannot widen it.
	if err = f.Chmod(0o600); err != nil {
		return errs.IO(op, target, fmt.Errorf("chmod temp file: %w", err))
	}
	if err = s.write(f, data); err != nil {
		return errs.IO(op, target, fmt.Errorf("write temp file: %w", err))
	}
	if durable {
		if err = f.Sync(); err != nil {
			return errs.IO(op, target, fmt.Errorf("sync temp file: %w", err))
		}
	}
	closed = true
	if err = f.Close(); err != nil {
		return errs.IO(op, target, fmt.Errorf("close temp file: %w", err))
	}
	if err = os.Rename(tmp, target); err != nil {
		return errs.IO(op, target, fmt.Errorf("rename: %w", err))
	}

	// tmp no longer exists; the deferred Remove below is a no-op.
	if cerr := os.Chmod(target, 0o600); cerr != nil {
		return errs.IO(op, target, fmt.Errorf("chmod: %w", cerr))
	}
	if durable {
		if serr := syncDir(dir); serr != nil {
			return errs.IO(op, target, fmt.Errorf("sync directory: %w", serr))
		}
	}
	return nil
}

// backupName returns the path of backup generation gen; 0 is the newest.
func (s *Store) backupName(gen int) string {
	if gen == 0 {
		return s.path + ".bak"
	}
	return s.path + ".bak." + strconv.Itoa(gen)
}

// backup preserves the current file content before it is replaced. Older
// generations shift up by one. Failures are logged and never returned.
func (s *Store) backup(ctx context.Context, current []byte) {
	if current == nil {
		data, err := s.readRaw()
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			s.log.Warn("backup skipped", "path", s.path, "error", err)
			return
		}
		current = data
	}

	for gen := s.cfg.BackupCount - 1; gen >= 1; gen-- {
		err := os.Rename(s.backupName(gen-1), s.backupName(gen))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("backup rotation failed", "from", s.backupName(gen-1), "to", s.backupName(gen), "error", err)
		}
	}

	err := retryTransient(ctx, s.log, OpBackup, func() error {
		return s.writeAtomic(OpBackup, s.backupName(0), current, false)
	})
	if err != nil {
		s.log.Warn("backup failed", "path", s.backupName(0), "error", err)
		return
	}
	s.log.Debug("backup written", "path", s.backupName(0), "bytes", len(current))
}

// readRaw returns the current file bytes with the same symlink and size
// protections as a load, without parsing.
func (s *Store) readRaw() ([]byte, error) {
	f, err := openNoFollow(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file (mode %s)", fi.Mode().Type())
	}
	return readLimited(f, s.cfg.MaxFileSize)
}

// sweepTemps removes temporary files left in the directory by writers that
// crashed before rename.
func (s *Store) sweepTemps() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	prefix := "." + filepath.Base(s.path) + "."
	cutoff := s.cfg.Now().Add(-staleTempAge)
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(s.dir, name)
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("failed to remove stale temp file", "path", p, "error", err)
			continue
		}
		s.log.Debug("removed stale temp file", "path", p, "age", s.cfg.Now().Sub(info.ModTime()))
	}
}
