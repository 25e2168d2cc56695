package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a store test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup establishes the initial file before the flow runs.
	Setup *Setup `yaml:"setup,omitempty"`

	// Flow contains the store operations under test.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Setup seeds the todo file. File is written verbatim first; Todos are then
// saved through the store. Neither appears in the trace.
type Setup struct {
	File  string     `yaml:"file,omitempty"`
	Todos []SeedTodo `yaml:"todos,omitempty"`
}

// SeedTodo is an entry saved during setup. A zero ID is assigned.
type SeedTodo struct {
	ID       int64    `yaml:"id,omitempty"`
	Text     string   `yaml:"text"`
	Done     bool     `yaml:"done,omitempty"`
	Priority int      `yaml:"priority,omitempty"`
	Due      string   `yaml:"due,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

// FlowStep is one store operation.
type FlowStep struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// ID names the entry for done, undone, edit and rm.
	ID int64 `yaml:"id,omitempty"`

	// Fields for add and edit. Nil pointers leave an edit field unchanged.
	Text     *string  `yaml:"text,omitempty"`
	Priority *int     `yaml:"priority,omitempty"`
	Due      *string  `yaml:"due,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`

	// Expect specifies the expected outcome. Nil means the step must
	// succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Code is "OK", an error code such as "VALIDATION", or "NOT_FOUND".
	Code string `yaml:"code"`

	// ID is the id the step's entry must have (add, done, undone, edit, rm).
	ID int64 `yaml:"id,omitempty"`

	// Count is the number of entries a load must return.
	Count *int `yaml:"count,omitempty"`
}

// Assertion validates the trace or the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// ID is the entry (final_state) or the expected next id (next_id).
	ID int64 `yaml:"id,omitempty"`

	// Expect holds expected entry fields for final_state, keyed by their
	// JSON names. Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that final_state finds no entry with ID.
	Absent bool `yaml:"absent,omitempty"`

	// Op and Code select trace events for trace_count.
	Op   string `yaml:"op,omitempty"`
	Code string `yaml:"code,omitempty"`

	// Ops is the expected order for trace_order.
	Ops []string `yaml:"ops,omitempty"`

	// Count is the expected number for trace_count and entry_count.
	Count int `yaml:"count,omitempty"`
}

// Flow operations.
const (
	OpAdd    = "add"
	OpDone   = "done"
	OpUndone = "undone"
	OpEdit   = "edit"
	OpRemove = "rm"
	OpLoad   = "load"
)

// Assertion type constants.
const (
	AssertFinalState = "final_state"
	AssertEntryCount = "entry_count"
	AssertNextID     = "next_id"
	AssertTraceCount = "trace_count"
	AssertTraceOrder = "trace_order"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Setup != nil {
		for i, seed := range s.Setup.Todos {
			if seed.Text == "" {
				return fmt.Errorf("setup.todos[%d]: text is required", i)
			}
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single flow step based on its op.
func validateStep(index int, step *FlowStep) error {
	switch step.Op {
	case "":
		return fmt.Errorf("flow[%d]: op is required", index)
	case OpAdd:
		if step.Text == nil {
			return fmt.Errorf("flow[%d]: text is required for add", index)
		}
	case OpDone, OpUndone, OpRemove:
		if step.ID == 0 {
			return fmt.Errorf("flow[%d]: id is required for %s", index, step.Op)
		}
	case OpEdit:
		if step.ID == 0 {
			return fmt.Errorf("flow[%d]: id is required for edit", index)
		}
		if step.Text == nil && step.Priority == nil && step.Due == nil && step.Tags == nil {
			return fmt.Errorf("flow[%d]: edit needs at least one of text, priority, due, tags", index)
		}
	case OpLoad:
	default:
		return fmt.Errorf("flow[%d]: unknown op %q", index, step.Op)
	}

	if step.Expect != nil && step.Expect.Code == "" {
		return fmt.Errorf("flow[%d].expect: code is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.ID == 0 {
			return fmt.Errorf("assertions[%d]: id is required for final_state", index)
		}
		if len(a.Expect) == 0 && !a.Absent {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
		if len(a.Expect) > 0 && a.Absent {
			return fmt.Errorf("assertions[%d]: expect and absent are mutually exclusive", index)
		}
	case AssertEntryCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for entry_count", index)
		}
	case AssertNextID:
		if a.ID <= 0 {
			return fmt.Errorf("assertions[%d]: id must be positive for next_id", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
