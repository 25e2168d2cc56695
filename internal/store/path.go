package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/flywheel/internal/errs"
)

// resolvePath turns the configured path into a clean absolute path, rejecting
// parent-directory segments that would leave the allowed root. No file is
// opened or created.
func resolvePath(path, root string) (string, error) {
	if path == "" {
		return "", errs.Validation(OpOpen, path, "empty path")
	}
	if strings.ContainsRune(path, 0) {
		return "", errs.Validation(OpOpen, path, "path contains NUL byte")
	}

	if root == "" && filepath.IsAbs(path) {
		if hasDotDot(path) {
			return "", errs.Validation(OpOpen, path, "path traversal: %q contains '..'", path)
		}
		return filepath.Clean(path), nil
	}

	base := root
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errs.IO(OpOpen, path, fmt.Errorf("get working directory: %w", err))
		}
		base = wd
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return "", errs.IO(OpOpen, path, fmt.Errorf("resolve root: %w", err))
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(base, full)
	}
	full = filepath.Clean(full)

	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.Validation(OpOpen, path, "path traversal: %q resolves outside %q", path, base)
	}
	if rel == "." {
		return "", errs.Validation(OpOpen, path, "path %q names the root directory itself", path)
	}
	return full, nil
}

func hasDotDot(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r < 0x80 && os.IsPathSeparator(uint8(r)) }) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// ensureDir creates dir and its parents. A concurrent creator is fine; an
// existing non-directory anywhere on the way is a validation error.
func ensureDir(op, dir string) error {
	if p, ok := fileInTheWay(dir); ok {
		return errs.Validation(op, p, "%q exists as a file, not a directory", p)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		if p, ok := fileInTheWay(dir); ok {
			return errs.Validation(op, p, "%q exists as a file, not a directory", p)
		}
		return errs.IO(op, dir, fmt.Errorf("create directory: %w", err))
	}
	return nil
}

// fileInTheWay returns the nearest existing ancestor of dir (dir included)
// if it is not a directory.
func fileInTheWay(dir string) (string, bool) {
	for p := dir; ; {
		// Not-exist and ENOTDIR both mean keep walking up.
		if fi, err := os.Stat(p); err == nil {
			if !fi.IsDir() {
				return p, true
			}
			return "", false
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", false
		}
		p = parent
	}
}
