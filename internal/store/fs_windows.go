//go:build windows

package store

import (
	"errors"
	"io/fs"
	"os"

	"golang.org/x/sys/windows"
)

// openNoFollow opens path for reading. Reparse points were already rejected
// by the Lstat check; FILE_FLAG_OPEN_REPARSE_POINT is not reachable through
// os.OpenFile.
func openNoFollow(path string) (*os.File, error) {
	return os.Open(path)
}

// Windows permission bits do not model group or other access; ACLs are left
// to the directory.
func checkPermissions(op, path string, fi fs.FileInfo, strict bool) error {
	return nil
}

func fileIdentity(fi fs.FileInfo) uint64 {
	return 0
}

func syncDir(dir string) error {
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) || errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
