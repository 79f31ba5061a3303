package wal

import (
	"testing"
)

type testPayload struct {
	Note string `json:"note"`
}

func TestAppendAndMarkApplied(t *testing.T) {
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	idx, err := w.Append(1, testPayload{Note: "first"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if idx != 0 {
		t.Errorf("expected index 0, got %d", idx)
	}
	if len(w.Unapplied()) != 1 {
		t.Fatal("expected 1 unapplied entry")
	}

	if err := w.MarkApplied(idx); err != nil {
		t.Fatalf("MarkApplied: %v", err)
	}
	if len(w.Unapplied()) != 0 {
		t.Error("expected no unapplied entries")
	}
	if w.Len() != 1 {
		t.Errorf("expected 1 entry total, got %d", w.Len())
	}
}

func TestMarkAppliedOutOfRange(t *testing.T) {
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.MarkApplied(0); err == nil {
		t.Error("expected out of range error")
	}
	if err := w.MarkApplied(-1); err == nil {
		t.Error("expected out of range error")
	}
}

func TestUnappliedSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	w, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := w.Append(1, testPayload{Note: "committed"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.MarkApplied(0); err != nil {
		t.Fatalf("MarkApplied: %v", err)
	}
	// Journaled but the process dies before commit.
	if _, err := w.Append(2, testPayload{Note: "orphaned"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	w2, err := New(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	unapplied := w2.Unapplied()
	if len(unapplied) != 1 {
		t.Fatalf("expected 1 unapplied entry after reopen, got %d", len(unapplied))
	}
	if unapplied[0].Cycle != 2 {
		t.Errorf("expected cycle 2, got %d", unapplied[0].Cycle)
	}
	if w2.Len() != 2 {
		t.Errorf("expected 2 entries total, got %d", w2.Len())
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	w, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := w.Append(1, testPayload{Note: "a"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries := w.Entries()
	entries[0].Applied = true

	if len(w.Unapplied()) != 1 {
		t.Error("mutating the returned slice must not affect the journal")
	}
}
