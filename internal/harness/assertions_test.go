package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flywheel/internal/todo"
)

func sampleResult() *Result {
	r := NewResult()
	r.addTrace(OpAdd, "update", "OK", 1)
	r.addTrace(OpDone, "update", "OK", 1)
	r.addTrace(OpDone, "update", "NOT_FOUND", 0)
	r.addTrace(OpLoad, "load", "OK", 1)
	r.State = []todo.Todo{{
		ID:        1,
		Text:      "Buy milk",
		Done:      true,
		CreatedAt: "2024-01-01T10:00:00Z",
		UpdatedAt: "2024-01-01T10:00:01Z",
		Priority:  2,
		Tags:      []string{"shop", "food"},
	}}
	r.NextID = 2
	return r
}

func TestAddTrace_Sequence(t *testing.T) {
	r := sampleResult()
	for i, ev := range r.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
	assert.Equal(t, "done", r.Trace[2].Step)
	assert.Equal(t, "update", r.Trace[2].Op)
}

func TestAssertFinalState(t *testing.T) {
	r := sampleResult()

	tests := []struct {
		name    string
		a       Assertion
		wantErr string
	}{
		{"subset match", Assertion{ID: 1, Expect: map[string]any{"text": "Buy milk", "done": true, "priority": 2}}, ""},
		{"tags match", Assertion{ID: 1, Expect: map[string]any{"tags": []any{"shop", "food"}}}, ""},
		{"unset due reads empty", Assertion{ID: 1, Expect: map[string]any{"due_date": ""}}, ""},
		{"absent ok", Assertion{ID: 5, Absent: true}, ""},
		{"field mismatch", Assertion{ID: 1, Expect: map[string]any{"done": false}}, "done = true"},
		{"tag order matters", Assertion{ID: 1, Expect: map[string]any{"tags": []any{"food", "shop"}}}, "tags ="},
		{"missing entry", Assertion{ID: 5, Expect: map[string]any{"done": true}}, "not found"},
		{"present but absent expected", Assertion{ID: 1, Absent: true}, "no entry with id 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(r, tt.a)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertEntryCountAndNextID(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertEntryCount(r, Assertion{Count: 1}))
	assert.Error(t, assertEntryCount(r, Assertion{Count: 0}))

	assert.NoError(t, assertNextID(r, Assertion{ID: 2}))
	err := assertNextID(r, Assertion{ID: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: next id 3")
	assert.Contains(t, err.Error(), "Actual: next id 2")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleResult().Trace

	assert.NoError(t, assertTraceCount(trace, Assertion{Op: "update", Count: 3}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpDone, Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpDone, Code: "NOT_FOUND", Count: 1}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Op: OpRemove, Count: 0}))

	err := assertTraceCount(trace, Assertion{Op: OpDone, Code: "OK", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 occurrences of done/OK")
	assert.Contains(t, err.Error(), "1 occurrences")
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleResult().Trace

	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{OpAdd, OpDone, OpLoad}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{OpAdd, OpLoad}}), "gaps are allowed")
	assert.NoError(t, assertTraceOrder(trace, Assertion{Ops: []string{OpDone, OpDone}}))

	err := assertTraceOrder(trace, Assertion{Ops: []string{OpLoad, OpAdd}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add not found after position 4")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := assertEntryCount(sampleResult(), Assertion{Count: 7})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: entry_count")
	assert.Contains(t, msg, "Expected: 7 entries")
	assert.Contains(t, msg, "Actual: 1 entries")
	assert.Contains(t, msg, "[3] done/update NOT_FOUND count=0")
}

func TestEvaluateAssertions(t *testing.T) {
	r := sampleResult()

	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertEntryCount, Count: 1},
		{Type: AssertNextID, ID: 9},
		{Type: "bogus"},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "next_id")
	assert.Contains(t, errs[1], `assertion[2]: unknown assertion type "bogus"`)

	assert.Empty(t, EvaluateAssertions(r, []Assertion{{Type: AssertTraceCount, Op: OpLoad, Count: 1}}))
}
