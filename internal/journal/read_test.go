package journal

import (
	"context"
	"testing"
	"time"
)

func TestRecent_EmptyReturnsEmptySlice(t *testing.T) {
	j := createTestJournal(t)

	entries, err := j.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if entries == nil {
		t.Error("Recent() returned nil, want empty slice")
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestRecent_NewestFirstWithLimit(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := j.Record(ctx, createTestEvent(id, "save", 0, nil)); err != nil {
			t.Fatalf("Record(%s) failed: %v", id, err)
		}
	}

	entries, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].OpID != "c" || entries[1].OpID != "b" {
		t.Errorf("order = %s, %s; want c, b", entries[0].OpID, entries[1].OpID)
	}
	if entries[0].Seq <= entries[1].Seq {
		t.Errorf("seq not descending: %d, %d", entries[0].Seq, entries[1].Seq)
	}
}

func TestSummary_GroupsByOpAndCode(t *testing.T) {
	j := createTestJournal(t)
	ctx := context.Background()

	events := []struct {
		id  string
		op  string
		d   time.Duration
		err error
	}{
		{"1", "save", 2 * time.Millisecond, nil},
		{"2", "save", 4 * time.Millisecond, nil},
		{"3", "save", 10 * time.Millisecond, errTestTimeout},
		{"4", "load", time.Millisecond, nil},
	}
	for _, e := range events {
		if err := j.Record(ctx, createTestEvent(e.id, e.op, e.d, e.err)); err != nil {
			t.Fatalf("Record(%s) failed: %v", e.id, err)
		}
	}

	summary, err := j.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() failed: %v", err)
	}
	if len(summary) != 3 {
		t.Fatalf("len(summary) = %d, want 3: %+v", len(summary), summary)
	}

	want := []OpSummary{
		{Op: "load", Code: "OK", Count: 1, AvgDuration: time.Millisecond, MaxDuration: time.Millisecond},
		{Op: "save", Code: "OK", Count: 2, AvgDuration: 3 * time.Millisecond, MaxDuration: 4 * time.Millisecond},
		{Op: "save", Code: "TIMEOUT", Count: 1, AvgDuration: 10 * time.Millisecond, MaxDuration: 10 * time.Millisecond},
	}
	for i := range want {
		if summary[i] != want[i] {
			t.Errorf("summary[%d] = %+v, want %+v", i, summary[i], want[i])
		}
	}
}

func TestSummary_Empty(t *testing.T) {
	j := createTestJournal(t)

	summary, err := j.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary() failed: %v", err)
	}
	if len(summary) != 0 {
		t.Errorf("len(summary) = %d, want 0", len(summary))
	}
}
