package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one recorded operation.
type Entry struct {
	Seq       int64         `json:"seq"`
	OpID      string        `json:"op_id"`
	Op        string        `json:"op"`
	Path      string        `json:"path"`
	Count     int           `json:"count"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Code      string        `json:"code"`
	Error     string        `json:"error,omitempty"`
	Cached    bool          `json:"cached"`
}

// OpSummary aggregates the entries sharing an op and code.
type OpSummary struct {
	Op          string        `json:"op"`
	Code        string        `json:"code"`
	Count       int64         `json:"count"`
	AvgDuration time.Duration `json:"avg_duration"`
	MaxDuration time.Duration `json:"max_duration"`
}

// Recent returns up to limit entries, newest first.
//
// Returns an empty slice (not nil) if the journal is empty.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, op_id, op, path, count, started_at, duration_us, code, error, cached
		FROM operations
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query operations: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operations: %w", err)
	}
	return entries, nil
}

// Summary aggregates all entries by op and code, ordered by op then code.
func (j *Journal) Summary(ctx context.Context) ([]OpSummary, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT op, code, COUNT(*), CAST(AVG(duration_us) AS INTEGER), MAX(duration_us)
		FROM operations
		GROUP BY op, code
		ORDER BY op ASC, code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	out := []OpSummary{}
	for rows.Next() {
		var s OpSummary
		var avgUS, maxUS int64
		if err := rows.Scan(&s.Op, &s.Code, &s.Count, &avgUS, &maxUS); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.AvgDuration = time.Duration(avgUS) * time.Microsecond
		s.MaxDuration = time.Duration(maxUS) * time.Microsecond
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}

// Count returns the number of recorded entries.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count operations: %w", err)
	}
	return n, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var e Entry
	var started string
	var durationUS int64
	err := rows.Scan(&e.Seq, &e.OpID, &e.Op, &e.Path, &e.Count, &started, &durationUS, &e.Code, &e.Error, &e.Cached)
	if err != nil {
		return Entry{}, fmt.Errorf("scan operation: %w", err)
	}
	e.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return Entry{}, fmt.Errorf("parse started_at %q: %w", started, err)
	}
	e.Duration = time.Duration(durationUS) * time.Microsecond
	return e, nil
}
