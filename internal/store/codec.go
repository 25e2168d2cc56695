package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/flywheel/internal/errs"
	"github.com/roach88/flywheel/internal/todo"
)

// FormatVersion is the _version written by this package and the newest one
// it reads.
const FormatVersion = 1

type fileDoc struct {
	Version int        `json:"_version"`
	Todos   []wireTodo `json:"todos"`
}

// wireTodo fixes the field order and writes an unset due date as null.
type wireTodo struct {
	ID        int64    `json:"id"`
	Text      string   `json:"text"`
	Done      bool     `json:"done"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	Priority  int      `json:"priority"`
	DueDate   *string  `json:"due_date"`
	Tags      []string `json:"tags,omitempty"`
}

// encode renders todos, indented up to compactAbove entries and compact past
// that. Non-ASCII text and HTML characters are written as-is.
func encode(todos []todo.Todo, compactAbove int) ([]byte, error) {
	doc := fileDoc{Version: FormatVersion, Todos: make([]wireTodo, 0, len(todos))}
	for _, t := range todos {
		w := wireTodo{
			ID:        t.ID,
			Text:      t.Text,
			Done:      t.Done,
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
			Priority:  t.Priority,
			Tags:      t.Tags,
		}
		if t.DueDate != "" {
			d := t.DueDate
			w.DueDate = &d
		}
		doc.Todos = append(doc.Todos, w)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if len(todos) <= compactAbove {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// decode parses and validates a store document. Every failure is a
// validation error naming path.
func decode(path string, data []byte) ([]todo.Todo, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errs.Validation(OpLoad, path, "file is empty")
	}

	switch trimmed[0] {
	case '[':
		if !json.Valid(trimmed) {
			return nil, malformed(path, trimmed)
		}
		return nil, errs.Validation(OpLoad, path,
			"upgrade required: legacy unversioned format (top-level array); expected {\"_version\": %d, \"todos\": [...]}", FormatVersion)
	case '{':
	default:
		if !json.Valid(trimmed) {
			return nil, malformed(path, trimmed)
		}
		return nil, errs.Validation(OpLoad, path, "top-level value must be an object, got %s", jsonKind(trimmed))
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, malformed(path, trimmed)
	}

	rawVersion, ok := top["_version"]
	if !ok || isNull(rawVersion) {
		return nil, errs.Validation(OpLoad, path, "upgrade required: missing _version field")
	}
	var version int
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return nil, errs.Validation(OpLoad, path, "_version must be an integer, got %s", jsonKind(rawVersion))
	}
	if version > FormatVersion {
		return nil, errs.Validation(OpLoad, path, "unsupported version %d (this build reads up to %d)", version, FormatVersion)
	}
	if version < 1 {
		return nil, errs.Validation(OpLoad, path, "invalid version %d", version)
	}

	rawTodos, ok := top["todos"]
	if !ok {
		return nil, errs.Validation(OpLoad, path, "missing todos field")
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(rawTodos, &elems); err != nil {
		return nil, errs.Validation(OpLoad, path, "todos must be an array, got %s", jsonKind(rawTodos))
	}

	todos := make([]todo.Todo, 0, len(elems))
	seen := make(map[int64]int, len(elems))
	for i, raw := range elems {
		t, err := decodeTodo(raw)
		if err != nil {
			return nil, errs.ValidationWrap(OpLoad, path, err, "element %d", i)
		}
		if first, dup := seen[t.ID]; dup {
			return nil, errs.Validation(OpLoad, path, "element %d: duplicate id %d (first seen at element %d)", i, t.ID, first)
		}
		seen[t.ID] = i
		todos = append(todos, t)
	}
	return todos, nil
}

// decodeTodo applies the field rules: id and text required, done as bool or
// 0/1, due_date null or "" for unset, unknown fields ignored.
func decodeTodo(raw json.RawMessage) (todo.Todo, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return todo.Todo{}, fmt.Errorf("expected an object, got %s", jsonKind(raw))
	}

	var t todo.Todo

	rawID, ok := fields["id"]
	if !ok || isNull(rawID) {
		return t, errors.New(`missing field "id"`)
	}
	if err := json.Unmarshal(rawID, &t.ID); err != nil {
		return t, fmt.Errorf(`field "id" must be an integer, got %s`, jsonKind(rawID))
	}

	rawText, ok := fields["text"]
	if !ok || isNull(rawText) {
		return t, errors.New(`missing field "text"`)
	}
	if err := json.Unmarshal(rawText, &t.Text); err != nil {
		return t, fmt.Errorf(`field "text" must be a string, got %s`, jsonKind(rawText))
	}
	if strings.TrimSpace(t.Text) == "" {
		return t, fmt.Errorf(`field "text": %w`, todo.ErrEmptyText)
	}

	if v, ok := fields["done"]; ok && !isNull(v) {
		done, err := decodeDone(v)
		if err != nil {
			return t, err
		}
		t.Done = done
	}

	for name, dst := range map[string]*string{"created_at": &t.CreatedAt, "updated_at": &t.UpdatedAt} {
		if v, ok := fields[name]; ok && !isNull(v) {
			if err := json.Unmarshal(v, dst); err != nil {
				return t, fmt.Errorf("field %q must be a string, got %s", name, jsonKind(v))
			}
		}
	}

	if v, ok := fields["priority"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &t.Priority); err != nil {
			return t, fmt.Errorf(`field "priority" must be an integer, got %s`, jsonKind(v))
		}
		if err := todo.ValidatePriority(t.Priority); err != nil {
			return t, fmt.Errorf(`field "priority": %w`, err)
		}
	}

	if v, ok := fields["due_date"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &t.DueDate); err != nil {
			return t, fmt.Errorf(`field "due_date" must be a string or null, got %s`, jsonKind(v))
		}
		if t.DueDate != "" {
			if err := todo.ValidateDueDate(t.DueDate); err != nil {
				return t, fmt.Errorf(`field "due_date": %w`, err)
			}
		}
	}

	if v, ok := fields["tags"]; ok && !isNull(v) {
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			return t, fmt.Errorf(`field "tags" must be an array of strings, got %s`, jsonKind(v))
		}
		clean, err := todo.NormalizeTags(tags)
		if err != nil {
			return t, fmt.Errorf(`field "tags": %w`, err)
		}
		t.Tags = clean
	}

	return t, nil
}

func decodeDone(v json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}
	var n json.Number
	if jsonKind(v) == "number" && json.Unmarshal(v, &n) == nil {
		switch n.String() {
		case "0":
			return false, nil
		case "1":
			return true, nil
		}
	}
	return false, fmt.Errorf(`field "done" must be a boolean or 0/1, got %s`, string(v))
}

func malformed(path string, data []byte) error {
	err := json.Unmarshal(data, new(any))
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		line, col := position(data, syn.Offset)
		return errs.ValidationWrap(OpLoad, path, err, "malformed JSON at line %d, column %d", line, col)
	}
	return errs.ValidationWrap(OpLoad, path, err, "malformed JSON")
}

func position(data []byte, offset int64) (line, col int) {
	line, col = 1, 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func jsonKind(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "nothing"
	}
	switch raw[0] {
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
