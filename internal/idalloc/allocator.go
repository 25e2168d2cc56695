// Package idalloc derives identifiers for new entries from a cached
// watermark.
//
// The watermark is the highest positive id observed. Allocation returns the
// watermark plus one and advances it, so ids are monotonic and gaps left by
// deletions are never refilled. Non-positive ids found in the data are ignored.
//
// The allocator is advisory and process-local: two processes may hand out
// the same id from independent snapshots. The store's locked load-modify-save
// is what guarantees uniqueness on disk.
package idalloc

import "sync/atomic"

// Allocator caches the id watermark.
//
// Thread-safety: Allocator is safe for concurrent use (atomic operations).
type Allocator struct {
	watermark atomic.Int64
}

// New creates an allocator whose first id is 1.
func New() *Allocator {
	return &Allocator{}
}

// NewAt creates an allocator with a known watermark.
func NewAt(watermark int64) *Allocator {
	a := &Allocator{}
	if watermark > 0 {
		a.watermark.Store(watermark)
	}
	return a
}

// Reset replaces the watermark with the highest positive id in ids.
// This is the single O(n) scan done once per load.
func (a *Allocator) Reset(ids []int64) {
	var highest int64
	for _, id := range ids {
		if id > highest {
			highest = id
		}
	}
	a.watermark.Store(highest)
}

// Observe raises the watermark to id if id is higher. Non-positive ids are
// ignored.
func (a *Allocator) Observe(id int64) {
	for {
		cur := a.watermark.Load()
		if id <= cur {
			return
		}
		if a.watermark.CompareAndSwap(cur, id) {
			return
		}
	}
}

// Next returns a fresh id and advances the watermark past it.
// Calls are linearizable; each call returns a unique, increasing value.
func (a *Allocator) Next() int64 {
	return a.watermark.Add(1)
}

// Peek returns the id Next would return, without advancing.
func (a *Allocator) Peek() int64 {
	return a.watermark.Load() + 1
}

// Watermark returns the highest positive id observed or allocated.
func (a *Allocator) Watermark() int64 {
	return a.watermark.Load()
}
