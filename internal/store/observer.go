package store

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/flywheel/internal/errs"
)

// Operation names used in events and errors.
const (
	OpOpen   = "open"
	OpLoad   = "load"
	OpSave   = "save"
	OpUpdate = "update"
	OpLock   = "lock"
	OpBackup = "backup"
)

// Event describes one completed store operation.
type Event struct {
	// ID is a UUIDv7 unique to the operation.
	ID string

	Op       string
	Path     string
	Count    int
	Started  time.Time
	Duration time.Duration

	// Cached is true for loads served from the in-memory cache.
	Cached bool

	// Err is the operation's error, nil on success.
	Err error
}

// Code returns the error code of the event: "OK" on success, "NOT_FOUND"
// for a missing id, otherwise the errs code or "ERROR".
func (e Event) Code() string {
	if e.Err == nil {
		return "OK"
	}
	if errors.Is(e.Err, ErrNotFound) {
		return "NOT_FOUND"
	}
	if c := errs.CodeOf(e.Err); c != "" {
		return string(c)
	}
	return "ERROR"
}

// Observer receives an Event after every store operation.
//
// Observers run synchronously on the caller's goroutine after the locks are
// released; they must not call back into the Store.
type Observer interface {
	ObserveStoreEvent(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

// ObserveStoreEvent calls f.
func (f ObserverFunc) ObserveStoreEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}
