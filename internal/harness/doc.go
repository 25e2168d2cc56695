// Package harness runs YAML scenarios against a Store.
//
// A scenario seeds a fresh todo file, applies a flow of store operations,
// and then checks the operation trace and the final file contents.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	setup:
//	  file: |                      # raw initial file content (optional)
//	    {"_version": 1, "todos": []}
//	  todos:                       # entries saved before the flow (optional)
//	    - text: seeded
//	flow:
//	  - op: add
//	    text: buy milk
//	    tags: [shop]
//	    expect: { code: OK, id: 1 }
//	  - op: done
//	    id: 1
//	  - op: rm
//	    id: 9
//	    expect: { code: NOT_FOUND }
//	assertions:
//	  - type: final_state
//	    id: 1
//	    expect: { done: true }
//	  - type: trace_count
//	    op: update
//	    count: 3
//
// # Operations
//
// add, done, undone, edit, rm and load map onto the Store methods of the same
// meaning. Each flow step may carry an expect clause; without one the step
// must succeed.
//
// # Assertion Types
//
//   - final_state: the entry with id matches expect (subset), or is absent
//   - entry_count: the file holds exactly count entries
//   - next_id: the id the next add would receive
//   - trace_count: op, a flow op or a store operation, appears exactly count
//     times (optionally only with code)
//   - trace_order: ops appear in the given order
//
// # Deterministic Testing
//
// Entry timestamps come from a testutil.DeterministicClock, one reading per
// mutating step, so traces and final state can be compared against golden
// files.
package harness
