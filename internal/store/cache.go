package store

import (
	"io/fs"
	"sync"

	"github.com/roach88/flywheel/internal/todo"
)

// fileKey identifies one version of the file. An atomic replace always
// changes the inode, so a stale hit needs an in-place edit that keeps both
// size and mtime.
type fileKey struct {
	size  int64
	mtime int64
	ino   uint64
}

func keyOf(fi fs.FileInfo) fileKey {
	return fileKey{size: fi.Size(), mtime: fi.ModTime().UnixNano(), ino: fileIdentity(fi)}
}

type loadCache struct {
	mu    sync.Mutex
	valid bool
	key   fileKey
	todos []todo.Todo
}

func (c *loadCache) get(k fileKey) ([]todo.Todo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || c.key != k {
		return nil, false
	}
	return cloneAll(c.todos), true
}

func (c *loadCache) put(k fileKey, todos []todo.Todo) {
	c.mu.Lock()
	c.valid = true
	c.key = k
	c.todos = cloneAll(todos)
	c.mu.Unlock()
}

func (c *loadCache) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.todos = nil
	c.mu.Unlock()
}

func cloneAll(todos []todo.Todo) []todo.Todo {
	out := make([]todo.Todo, len(todos))
	for i, t := range todos {
		out[i] = t.Clone()
	}
	return out
}
