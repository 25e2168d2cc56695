package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/flywheel/internal/store"
)

// Record inserts one event. Uses ON CONFLICT(op_id) DO NOTHING for
// idempotency - recording the same event twice keeps the first row.
func (j *Journal) Record(ctx context.Context, ev store.Event) error {
	var errText string
	if ev.Err != nil {
		errText = ev.Err.Error()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO operations
		(op_id, op, path, count, started_at, duration_us, code, error, cached)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(op_id) DO NOTHING
	`,
		ev.ID,
		ev.Op,
		ev.Path,
		ev.Count,
		ev.Started.UTC().Format(time.RFC3339Nano),
		ev.Duration.Microseconds(),
		ev.Code(),
		errText,
		ev.Cached,
	)
	if err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

// Prune deletes all but the newest keep rows and returns how many were
// removed.
func (j *Journal) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := j.db.ExecContext(ctx, `
		DELETE FROM operations
		WHERE seq <= (SELECT COALESCE(MAX(seq), 0) FROM operations) - ?
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune operations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune operations: %w", err)
	}
	return n, nil
}
