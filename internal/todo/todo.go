// Package todo defines the entry persisted by the store.
//
// Entries are identified by ID alone: two values with the same ID are the same
// logical record regardless of their other fields. An ID of 0 means "not yet
// assigned"; the store assigns one on first persist.
//
// Mutating methods take the current time explicitly so callers (and tests)
// control the UpdatedAt stamp.
package todo

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Priority bounds. 0 means unset; 1 is the highest priority.
const (
	PriorityNone = 0
	PriorityHigh = 1
	PriorityLow  = 3
)

// DateLayout is the layout of DueDate.
const DateLayout = "2006-01-02"

var (
	// ErrEmptyText is returned when text is empty or whitespace-only after
	// sanitizing.
	ErrEmptyText = errors.New("todo text cannot be empty")

	// ErrTextTooLong is returned when text exceeds MaxTextLength runes.
	ErrTextTooLong = errors.New("todo text too long")

	// ErrInvalidDate is returned for due dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid due date")

	// ErrInvalidPriority is returned for priorities outside 0..3.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrInvalidTag is returned for tags that are empty after trimming.
	ErrInvalidTag = errors.New("invalid tag")
)

var dueDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Todo is one persisted entry.
type Todo struct {
	ID        int64    `json:"id"`
	Text      string   `json:"text"`
	Done      bool     `json:"done"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	Priority  int      `json:"priority"`
	DueDate   string   `json:"due_date,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// FormatTime renders t the way CreatedAt and UpdatedAt are stored.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// New creates an unsaved entry with sanitized text, stamped at now.
func New(text string, now time.Time) (Todo, error) {
	clean, err := SanitizeText(text)
	if err != nil {
		return Todo{}, err
	}
	stamp := FormatTime(now)
	return Todo{
		Text:      clean,
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}, nil
}

// String returns a short debug form: id, done flag and text truncated to 50
// characters.
func (t Todo) String() string {
	text := []rune(t.Text)
	if len(text) > 50 {
		text = append(text[:47], []rune("...")...)
	}
	return fmt.Sprintf("Todo(id=%d, text=%q, done=%t)", t.ID, string(text), t.Done)
}

// Equal reports whether t and other are the same logical record.
func (t Todo) Equal(other Todo) bool {
	return t.ID == other.ID
}

// Clone returns a deep copy.
func (t Todo) Clone() Todo {
	c := t
	c.Tags = slices.Clone(t.Tags)
	return c
}

// Rename replaces the text.
func (t *Todo) Rename(text string, now time.Time) error {
	clean, err := SanitizeText(text)
	if err != nil {
		return err
	}
	t.Text = clean
	t.touch(now)
	return nil
}

// MarkDone sets Done.
func (t *Todo) MarkDone(now time.Time) {
	t.Done = true
	t.touch(now)
}

// MarkUndone clears Done.
func (t *Todo) MarkUndone(now time.Time) {
	t.Done = false
	t.touch(now)
}

// SetPriority sets the priority (0 clears it).
func (t *Todo) SetPriority(p int, now time.Time) error {
	if err := ValidatePriority(p); err != nil {
		return err
	}
	t.Priority = p
	t.touch(now)
	return nil
}

// SetDueDate sets the due date; "" clears it.
func (t *Todo) SetDueDate(date string, now time.Time) error {
	if date != "" {
		if err := ValidateDueDate(date); err != nil {
			return err
		}
	}
	t.DueDate = date
	t.touch(now)
	return nil
}

// SetTags replaces the tags. Tags are trimmed and de-duplicated, keeping the
// first occurrence's position.
func (t *Todo) SetTags(tags []string, now time.Time) error {
	clean, err := NormalizeTags(tags)
	if err != nil {
		return err
	}
	t.Tags = clean
	t.touch(now)
	return nil
}

// HasTag reports whether t carries tag.
func (t Todo) HasTag(tag string) bool {
	return slices.Contains(t.Tags, strings.TrimSpace(tag))
}

// IsOverdue reports whether the entry is not done and its due date is before
// now's calendar date.
func (t Todo) IsOverdue(now time.Time) bool {
	if t.DueDate == "" || t.Done {
		return false
	}
	due, err := time.Parse(DateLayout, t.DueDate)
	if err != nil {
		return false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return due.Before(today)
}

// Validate checks the field invariants. It does not require an ID.
func (t Todo) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return ErrEmptyText
	}
	if err := ValidatePriority(t.Priority); err != nil {
		return err
	}
	if t.DueDate != "" {
		if err := ValidateDueDate(t.DueDate); err != nil {
			return err
		}
	}
	for _, tag := range t.Tags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("%w: empty tag", ErrInvalidTag)
		}
	}
	return nil
}

func (t *Todo) touch(now time.Time) {
	t.UpdatedAt = FormatTime(now)
}

// ValidatePriority accepts 0 (unset) and 1..3.
func ValidatePriority(p int) error {
	if p != PriorityNone && (p < PriorityHigh || p > PriorityLow) {
		return fmt.Errorf("%w: %d (want %d-%d, or %d for none)", ErrInvalidPriority, p, PriorityHigh, PriorityLow, PriorityNone)
	}
	return nil
}

// ValidateDueDate accepts strict YYYY-MM-DD calendar dates.
func ValidateDueDate(date string) error {
	if !dueDatePattern.MatchString(date) {
		return fmt.Errorf("%w: %q, expected YYYY-MM-DD", ErrInvalidDate, date)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return nil
}

// NormalizeTags trims and de-duplicates tags.
func NormalizeTags(tags []string) ([]string, error) {
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return nil, fmt.Errorf("%w: empty tag", ErrInvalidTag)
		}
		if strings.ContainsAny(tag, ", \t\n") {
			return nil, fmt.Errorf("%w: %q contains a separator", ErrInvalidTag, tag)
		}
		if !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out, nil
}
