package hybridlock

import "time"

// Stats is a point-in-time snapshot of lock usage counters.
type Stats struct {
	// Acquisitions counts successful acquisitions of either convention.
	Acquisitions uint64 `json:"acquisitions"`

	// SuspendAcquisitions counts the subset made through LockSuspend.
	SuspendAcquisitions uint64 `json:"suspend_acquisitions"`

	// Contended counts acquisitions that had to wait.
	Contended uint64 `json:"contended"`

	// Timeouts counts acquisitions abandoned because their bound elapsed.
	Timeouts uint64 `json:"timeouts"`

	// TotalWait is the cumulative wait of contended acquisitions.
	TotalWait time.Duration `json:"total_wait_ns"`

	// MaxWait is the longest single wait.
	MaxWait time.Duration `json:"max_wait_ns"`
}

// AverageWait returns the mean wait of contended acquisitions.
func (s Stats) AverageWait() time.Duration {
	if s.Contended == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(s.Contended)
}

// Stats returns a snapshot of the counters. It only takes the statistics
// mutex, so it never waits on the critical section.
func (l *Lock) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// ResetStats zeroes the counters.
func (l *Lock) ResetStats() {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	l.stats = Stats{}
}
