// Package store persists the full todo set as one JSON document.
//
// The on-disk file is never modified in place. Every save writes a temporary
// file in the same directory, flushes it, and renames it over the target, so
// readers observe either the previous or the next complete document.
//
// # File format
//
//	{
//	  "_version": 1,
//	  "todos": [
//	    {"id": 1, "text": "...", "done": false, "created_at": "...",
//	     "updated_at": "...", "priority": 0, "due_date": null}
//	  ]
//	}
//
// A bare top-level array is the legacy unversioned format and is rejected
// with an "upgrade required" validation error.
//
// # Locking
//
// Each operation holds two locks:
//   - a hybridlock.Lock, serializing operations within the process for both
//     blocking callers and cooperative tasks
//   - an advisory OS lock on "<path>.lock", serializing processes
//
// Update holds both for the whole load-modify-save, which is what makes id
// assignment collision-free across writers.
//
// # Load checks
//
//   - the path must be a regular file; symlinks are rejected without being
//     followed
//   - the size ceiling applies to bytes actually read
//   - files writable by others are rejected; StrictPermissions also rejects
//     files readable by others
//   - duplicate ids are a load error
package store
