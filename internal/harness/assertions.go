package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/flywheel/internal/todo"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	// Header with assertion type
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)

	// Expected vs Actual (most important info)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Full trace for context
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s/%s %s count=%d\n", event.Seq, event.Step, event.Op, event.Code, event.Count)
	}

	return buf.String()
}

// assertFinalState checks the entry with assertion.ID against the expected
// fields (subset match), or that it is absent.
func assertFinalState(result *Result, assertion Assertion) error {
	var found *todo.Todo
	for i := range result.State {
		if result.State[i].ID == assertion.ID {
			found = &result.State[i]
			break
		}
	}

	if assertion.Absent {
		if found != nil {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("no entry with id %d", assertion.ID),
				Actual:   fmt.Sprintf("found %s", found),
				Trace:    result.Trace,
			}
		}
		return nil
	}

	if found == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("entry with id %d", assertion.ID),
			Actual:   "not found",
			Trace:    result.Trace,
		}
	}

	actual, err := toFieldMap(*found)
	if err != nil {
		return err
	}

	// Sort keys for deterministic error messages
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		expected := assertion.Expect[key]
		got, exists := actual[key]
		if !exists {
			// Omitted fields (empty due date, no tags) read as their zero value
			got = zeroField(key)
		}
		if !stateValuesEqual(expected, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("id %d %s = %v", assertion.ID, key, expected),
				Actual:   fmt.Sprintf("%s = %v", key, got),
				Trace:    result.Trace,
			}
		}
	}

	return nil
}

// assertEntryCount checks the number of entries in the final state.
func assertEntryCount(result *Result, assertion Assertion) error {
	if len(result.State) != assertion.Count {
		return &AssertionError{
			Type:     AssertEntryCount,
			Expected: fmt.Sprintf("%d entries", assertion.Count),
			Actual:   fmt.Sprintf("%d entries", len(result.State)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertNextID checks the id the next add would receive.
func assertNextID(result *Result, assertion Assertion) error {
	if result.NextID != assertion.ID {
		return &AssertionError{
			Type:     AssertNextID,
			Expected: fmt.Sprintf("next id %d", assertion.ID),
			Actual:   fmt.Sprintf("next id %d", result.NextID),
			Trace:    result.Trace,
		}
	}
	return nil
}

// matchesOp reports whether op names the event's flow step or store
// operation.
func (e TraceEvent) matchesOp(op string) bool {
	return e.Step == op || e.Op == op
}

// assertTraceCount checks if the op appears exactly the specified number of
// times, restricted to assertion.Code when set.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.matchesOp(assertion.Op) && (assertion.Code == "" || event.Code == assertion.Code) {
			count++
		}
	}

	if count != assertion.Count {
		what := assertion.Op
		if assertion.Code != "" {
			what += "/" + assertion.Code
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}

	return nil
}

// assertTraceOrder checks if ops appear in the specified order.
// Ops don't need to be consecutive (intervening ops are allowed); each op
// is matched at its first occurrence after the previous match.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	pos := 0
	for _, op := range assertion.Ops {
		found := false
		for pos < len(trace) {
			pos++
			if trace[pos-1].matchesOp(op) {
				found = true
				break
			}
		}
		if !found {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("ops in order: %v", assertion.Ops),
				Actual:   fmt.Sprintf("%s not found after position %d", op, pos),
				Trace:    trace,
			}
		}
	}
	return nil
}

// toFieldMap returns t keyed by its JSON field names.
func toFieldMap(t todo.Todo) (map[string]any, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal entry %d: %w", t.ID, err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal entry %d: %w", t.ID, err)
	}
	return m, nil
}

func zeroField(key string) any {
	switch key {
	case "due_date":
		return ""
	case "tags":
		return []any{}
	}
	return nil
}

// stateValuesEqual compares an expected value from YAML with an actual value
// from JSON. Both are normalized through JSON so that YAML ints match JSON
// numbers and YAML sequences match JSON arrays.
func stateValuesEqual(expected, actual any) bool {
	return reflect.DeepEqual(normalize(expected), normalize(actual))
}

func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertEntryCount:
			err = assertEntryCount(result, assertion)
		case AssertNextID:
			err = assertNextID(result, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
