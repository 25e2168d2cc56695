package harness

import "github.com/roach88/flywheel/internal/todo"

// TraceEvent is one store operation observed during the flow.
type TraceEvent struct {
	Seq int64 `json:"seq"`

	// Step is the flow op that caused the event; Op is the store operation.
	Step  string `json:"step"`
	Op    string `json:"op"`
	Code  string `json:"code"`
	Count int    `json:"count"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains the store operations of the flow, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the final file content.
	State []todo.Todo `json:"state"`

	// NextID is the id the next add would receive.
	NextID int64 `json:"next_id"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  []todo.Todo{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends a trace event with the next sequence number.
func (r *Result) addTrace(step, op, code string, count int) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:   int64(len(r.Trace) + 1),
		Step:  step,
		Op:    op,
		Code:  code,
		Count: count,
	})
}
