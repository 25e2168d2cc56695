package journal

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/flywheel/internal/errs"
	"github.com/roach88/flywheel/internal/store"
)

// createTestJournal creates a new journal in a temp directory.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

var testEpoch = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

// createTestEvent creates an event with minimal required fields.
func createTestEvent(id, op string, d time.Duration, err error) store.Event {
	return store.Event{
		ID:       id,
		Op:       op,
		Path:     "/tmp/todo.json",
		Count:    2,
		Started:  testEpoch,
		Duration: d,
		Err:      err,
	}
}

var errTestTimeout = errs.Timeout(store.OpSave, "/tmp/todo.json", time.Second, errors.New("busy"))
