package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/roach88/flywheel/internal/errs"
	"github.com/roach88/flywheel/internal/store"
	"github.com/roach88/flywheel/internal/testutil"
	"github.com/roach88/flywheel/internal/todo"
)

// Harness is the scenario execution engine.
// It runs one scenario against a fresh store with a deterministic clock.
type Harness struct {
	store     *store.Store
	clock     *testutil.DeterministicClock
	result    *Result
	recording bool
	step      string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh file in its own temporary directory.
//
// Execution flow:
// 1. Write setup.file and save setup.todos
// 2. Execute flow steps with expect validation, recording the trace
// 3. Load the final state
// 4. Evaluate assertions
//
// The returned error reports a harness failure (the scenario could not be
// run); scenario failures are reported through Result.Pass and Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "flywheel-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "todo.json")
	if scenario.Setup != nil && scenario.Setup.File != "" {
		if err := os.WriteFile(path, []byte(scenario.Setup.File), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write setup file: %w", err)
		}
	}

	h := &Harness{
		clock:  testutil.NewDeterministicClock(),
		result: NewResult(),
	}

	st, err := store.Open(store.Config{
		Path:      path,
		Durable:   store.Bool(false),
		Observers: []store.Observer{store.ObserverFunc(h.observe)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	h.store = st

	if scenario.Setup != nil {
		if err := h.executeSetup(ctx, scenario.Setup.Todos); err != nil {
			return nil, err
		}
	}

	h.recording = true
	for i, step := range scenario.Flow {
		h.executeStep(ctx, i, step)
	}
	h.recording = false

	state, err := st.Load(ctx)
	if err != nil {
		h.result.AddError(fmt.Sprintf("final load failed: %v", err))
	} else {
		h.result.State = state
	}
	h.result.NextID = st.NextID()

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// observe records store events while the flow runs.
func (h *Harness) observe(_ context.Context, ev store.Event) {
	if h.recording {
		h.result.addTrace(h.step, ev.Op, ev.Code(), ev.Count)
	}
}

// executeSetup saves the seed entries. Setup steps are assumed to succeed.
func (h *Harness) executeSetup(ctx context.Context, seeds []SeedTodo) error {
	if len(seeds) == 0 {
		return nil
	}

	todos := make([]todo.Todo, 0, len(seeds))
	for i, seed := range seeds {
		now := h.clock.Now()
		t, err := todo.New(seed.Text, now)
		if err != nil {
			return fmt.Errorf("setup.todos[%d]: %w", i, err)
		}
		t.ID = seed.ID
		if seed.Done {
			t.MarkDone(now)
		}
		if err := applyFields(&t, now, &seed.Priority, &seed.Due, seed.Tags); err != nil {
			return fmt.Errorf("setup.todos[%d]: %w", i, err)
		}
		todos = append(todos, t)
	}

	if err := h.store.Save(ctx, todos); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}
	return nil
}

// executeStep runs one flow step and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, index int, step FlowStep) {
	h.step = step.Op
	id, count, err := h.apply(ctx, step)

	expect := step.Expect
	if expect == nil {
		expect = &ExpectClause{Code: "OK"}
	}

	if got := outcomeCode(err); got != expect.Code {
		msg := fmt.Sprintf("flow[%d] %s: expected %s, got %s", index, step.Op, expect.Code, got)
		if err != nil {
			msg += fmt.Sprintf(" (%v)", err)
		}
		h.result.AddError(msg)
		return
	}
	if expect.ID != 0 && id != expect.ID {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected id %d, got %d", index, step.Op, expect.ID, id))
	}
	if expect.Count != nil && count != *expect.Count {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected %d entries, got %d", index, step.Op, *expect.Count, count))
	}
}

// apply performs the step's store operation and returns the affected id and
// the entry count (for load).
func (h *Harness) apply(ctx context.Context, step FlowStep) (int64, int, error) {
	switch step.Op {
	case OpAdd:
		now := h.clock.Now()
		t, err := todo.New(*step.Text, now)
		if err != nil {
			return 0, 0, err
		}
		if err := applyFields(&t, now, step.Priority, step.Due, step.Tags); err != nil {
			return 0, 0, err
		}
		added, err := h.store.Add(ctx, t)
		return added.ID, 0, err

	case OpDone, OpUndone, OpEdit:
		now := h.clock.Now()
		modified, err := h.store.Modify(ctx, step.ID, func(t *todo.Todo) error {
			switch step.Op {
			case OpDone:
				t.MarkDone(now)
			case OpUndone:
				t.MarkUndone(now)
			default:
				if step.Text != nil {
					if err := t.Rename(*step.Text, now); err != nil {
						return err
					}
				}
				return applyFields(t, now, step.Priority, step.Due, step.Tags)
			}
			return nil
		})
		return modified.ID, 0, err

	case OpRemove:
		removed, err := h.store.Remove(ctx, step.ID)
		return removed.ID, 0, err

	case OpLoad:
		todos, err := h.store.Load(ctx)
		return 0, len(todos), err
	}
	return 0, 0, fmt.Errorf("unknown op %q", step.Op)
}

// applyFields sets the optional fields that are present.
func applyFields(t *todo.Todo, now time.Time, priority *int, due *string, tags []string) error {
	if priority != nil {
		if err := t.SetPriority(*priority, now); err != nil {
			return err
		}
	}
	if due != nil {
		if err := t.SetDueDate(*due, now); err != nil {
			return err
		}
	}
	if tags != nil {
		if err := t.SetTags(tags, now); err != nil {
			return err
		}
	}
	return nil
}

var entryErrors = []error{
	todo.ErrEmptyText,
	todo.ErrTextTooLong,
	todo.ErrInvalidDate,
	todo.ErrInvalidPriority,
	todo.ErrInvalidTag,
}

// outcomeCode classifies a step's error for expect clauses.
func outcomeCode(err error) string {
	if err == nil {
		return "OK"
	}
	if c := (store.Event{Err: err}).Code(); c != "ERROR" {
		return c
	}
	if slices.ContainsFunc(entryErrors, func(target error) bool { return errors.Is(err, target) }) {
		return string(errs.CodeValidation)
	}
	return "ERROR"
}
