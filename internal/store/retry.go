package store

import (
	"context"
	"log/slog"
	"time"
)

const (
	retryAttempts = 3
	retryInitial  = 10 * time.Millisecond
)

// retryTransient calls fn until it succeeds, fails with a non-transient
// error, or runs out of attempts. Delays double between attempts.
func retryTransient(ctx context.Context, log *slog.Logger, op string, fn func() error) error {
	delay := retryInitial
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || attempt == retryAttempts || !isTransient(err) {
			return err
		}
		log.Debug("retrying transient I/O error", "op", op, "attempt", attempt, "delay", delay, "error", err)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		delay *= 2
	}
}
