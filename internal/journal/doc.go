// Package journal records store operations in a SQLite database.
//
// The journal is diagnostic only. It implements store.Observer, and a
// failure to record an event is logged and never fails the store operation
// that produced it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Rows are ordered by seq, an autoincrement column, never by timestamp.
package journal
