//go:build unix

package store

import (
	"errors"
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/roach88/flywheel/internal/errs"
)

// openNoFollow opens path for reading, failing if the final component is a
// symlink. This closes the window between the Lstat check and the open.
func openNoFollow(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil && (errors.Is(err, unix.ELOOP) || errors.Is(err, unix.EMLINK)) {
		return nil, ErrSymlink
	}
	return f, err
}

// checkPermissions rejects files writable by group or others, and in strict
// mode files readable by them.
func checkPermissions(op, path string, fi fs.FileInfo, strict bool) error {
	perm := fi.Mode().Perm()
	if perm&0o022 != 0 {
		return errs.ValidationWrap(op, path, ErrInsecurePermissions, "mode %#o is writable by group or others", perm)
	}
	if strict && perm&0o044 != 0 {
		return errs.ValidationWrap(op, path, ErrInsecurePermissions, "mode %#o is readable by group or others (strict mode)", perm)
	}
	return nil
}

func fileIdentity(fi fs.FileInfo) uint64 {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return uint64(st.Ino)
	}
	return 0
}

// syncDir flushes directory metadata so a completed rename survives a crash.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, unix.EINVAL) && !errors.Is(err, unix.ENOTSUP) {
		return err
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EBUSY)
}
