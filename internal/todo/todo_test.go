package todo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func TestNew_StampsAndSanitizes(t *testing.T) {
	td, err := New("  buy milk \n", t0)
	require.NoError(t, err)

	assert.Equal(t, int64(0), td.ID)
	assert.Equal(t, "buy milk", td.Text)
	assert.Equal(t, "2024-01-01T10:00:00Z", td.CreatedAt)
	assert.Equal(t, td.CreatedAt, td.UpdatedAt)
	assert.False(t, td.Done)
}

func TestNew_RejectsEmpty(t *testing.T) {
	for _, text := range []string{"", "   ", "\t\n", "\u200B\u202E"} {
		_, err := New(text, t0)
		assert.ErrorIs(t, err, ErrEmptyText, "text %q", text)
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"bidi override", "pay \u202Eevil\u202C now", "pay evil now"},
		{"isolates", "a\u2066b\u2069c", "abc"},
		{"zero width", "to\u200Bdo\uFEFF", "todo"},
		{"control", "bell\x07 ring", "bell ring"},
		{"newlines", "line1\nline2", "line1 line2"},
		{"nfc", "e\u0301", "\u00e9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeText(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeText_TooLong(t *testing.T) {
	_, err := SanitizeText(strings.Repeat("x", MaxTextLength+1))
	assert.ErrorIs(t, err, ErrTextTooLong)

	_, err = SanitizeText(strings.Repeat("x", MaxTextLength))
	assert.NoError(t, err)
}

func TestMutations_RefreshUpdatedAt(t *testing.T) {
	td, err := New("task", t0)
	require.NoError(t, err)
	want := FormatTime(t1)

	td.MarkDone(t1)
	assert.True(t, td.Done)
	assert.Equal(t, want, td.UpdatedAt)
	assert.Equal(t, FormatTime(t0), td.CreatedAt)

	td.UpdatedAt = ""
	td.MarkUndone(t1)
	assert.False(t, td.Done)
	assert.Equal(t, want, td.UpdatedAt)

	td.UpdatedAt = ""
	require.NoError(t, td.Rename("renamed", t1))
	assert.Equal(t, "renamed", td.Text)
	assert.Equal(t, want, td.UpdatedAt)

	td.UpdatedAt = ""
	require.NoError(t, td.SetPriority(2, t1))
	assert.Equal(t, 2, td.Priority)
	assert.Equal(t, want, td.UpdatedAt)
}

func TestRename_RejectsEmptyAndKeepsOld(t *testing.T) {
	td, err := New("keep me", t0)
	require.NoError(t, err)

	err = td.Rename("   ", t1)
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, "keep me", td.Text)
	assert.Equal(t, FormatTime(t0), td.UpdatedAt)
}

func TestSetPriority_Range(t *testing.T) {
	td := Todo{Text: "x"}
	for _, p := range []int{0, 1, 2, 3} {
		assert.NoError(t, td.SetPriority(p, t0))
	}
	for _, p := range []int{-1, 4, 100} {
		assert.ErrorIs(t, td.SetPriority(p, t0), ErrInvalidPriority)
	}
}

func TestSetDueDate(t *testing.T) {
	td := Todo{Text: "x"}

	require.NoError(t, td.SetDueDate("2024-02-29", t0))
	assert.Equal(t, "2024-02-29", td.DueDate)

	for _, bad := range []string{"2024/01/01", "2024-1-1", "2023-02-29", "2024-01-01T00:00:00Z", "tomorrow"} {
		assert.ErrorIs(t, td.SetDueDate(bad, t0), ErrInvalidDate, "date %q", bad)
	}
	assert.Equal(t, "2024-02-29", td.DueDate)

	require.NoError(t, td.SetDueDate("", t0))
	assert.Empty(t, td.DueDate)
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		td   Todo
		want bool
	}{
		{"no due date", Todo{Text: "x"}, false},
		{"past", Todo{Text: "x", DueDate: "2024-03-09"}, true},
		{"today", Todo{Text: "x", DueDate: "2024-03-10"}, false},
		{"future", Todo{Text: "x", DueDate: "2024-04-01"}, false},
		{"past but done", Todo{Text: "x", DueDate: "2024-01-01", Done: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.td.IsOverdue(now))
		})
	}
}

func TestSetTags(t *testing.T) {
	td := Todo{Text: "x"}
	require.NoError(t, td.SetTags([]string{" work ", "urgent", "work"}, t0))
	assert.Equal(t, []string{"work", "urgent"}, td.Tags)
	assert.True(t, td.HasTag("urgent"))
	assert.False(t, td.HasTag("home"))

	assert.ErrorIs(t, td.SetTags([]string{"ok", " "}, t0), ErrInvalidTag)
	assert.ErrorIs(t, td.SetTags([]string{"a,b"}, t0), ErrInvalidTag)
}

func TestEqual_ByIDOnly(t *testing.T) {
	a := Todo{ID: 7, Text: "a"}
	b := Todo{ID: 7, Text: "b", Done: true}
	c := Todo{ID: 8, Text: "a"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestClone_Deep(t *testing.T) {
	a := Todo{ID: 1, Text: "a", Tags: []string{"x"}}
	b := a.Clone()
	b.Tags[0] = "y"
	assert.Equal(t, "x", a.Tags[0])
}

func TestString_Truncates(t *testing.T) {
	td := Todo{ID: 3, Text: strings.Repeat("a", 60)}
	s := td.String()
	assert.Contains(t, s, "id=3")
	assert.Contains(t, s, strings.Repeat("a", 47)+"...")
	assert.NotContains(t, s, strings.Repeat("a", 48))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Todo{Text: "ok", Priority: 1, DueDate: "2024-01-01", Tags: []string{"a"}}.Validate())
	assert.ErrorIs(t, Todo{Text: "  "}.Validate(), ErrEmptyText)
	assert.ErrorIs(t, Todo{Text: "x", Priority: 9}.Validate(), ErrInvalidPriority)
	assert.ErrorIs(t, Todo{Text: "x", DueDate: "soon"}.Validate(), ErrInvalidDate)
	assert.ErrorIs(t, Todo{Text: "x", Tags: []string{""}}.Validate(), ErrInvalidTag)
}
