package outcome

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/seekerlabs/seekerd/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "outcomes.db"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(requestID string) types.OutcomeRecord {
	return types.OutcomeRecord{
		RequestID: requestID,
		Classification: types.ClassificationResult{
			RequestID:  requestID,
			Primary:    "product_search",
			Confidence: 0.8,
		},
		Routing: types.RoutingDecision{
			RequestID: requestID,
			Logic:     types.LogicAutoRoute,
			Assignments: []types.AgentAssignment{
				{AgentID: "search-1", Category: "product_search", Confidence: 0.8},
			},
		},
	}
}

func TestAppendAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, testRecord("req-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rec, err := s.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Classification.Primary != "product_search" {
		t.Errorf("unexpected category %s", rec.Classification.Primary)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped on append")
	}
	if rec.HasFeedback() {
		t.Error("fresh record must not report feedback")
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, testRecord("req-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, testRecord("req-1")); err == nil {
		t.Error("expected duplicate request_id to fail")
	}
}

func TestAttachResponsesAndFeedback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, testRecord("req-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if err := s.AttachResponses(ctx, "req-1", []types.AgentResponse{
		{RequestID: "req-1", AgentID: "search-1", Success: true, LatencyMs: 120},
	}); err != nil {
		t.Fatalf("AttachResponses: %v", err)
	}

	correct := true
	if err := s.AttachFeedback(ctx, "req-1", types.Feedback{Satisfaction: 0.9, Correct: &correct}); err != nil {
		t.Fatalf("AttachFeedback: %v", err)
	}

	rec, err := s.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Responses) != 1 || rec.Responses[0].AgentID != "search-1" {
		t.Errorf("unexpected responses %+v", rec.Responses)
	}
	if !rec.HasFeedback() || rec.Feedback.Satisfaction != 0.9 {
		t.Errorf("unexpected feedback %+v", rec.Feedback)
	}
	if !rec.HasKnownCorrectness() || !*rec.Feedback.Correct {
		t.Error("correctness flag lost")
	}
	if rec.Feedback.ReceivedAt.IsZero() {
		t.Error("feedback time should be stamped")
	}
}

func TestAttachToMissingRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AttachFeedback(ctx, "ghost", types.Feedback{Satisfaction: 0.5}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.AttachResponses(ctx, "ghost", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFeedbackReplacement(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, testRecord("req-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.AttachFeedback(ctx, "req-1", types.Feedback{Satisfaction: 0.2}); err != nil {
		t.Fatalf("AttachFeedback: %v", err)
	}
	if err := s.AttachFeedback(ctx, "req-1", types.Feedback{Satisfaction: 0.7}); err != nil {
		t.Fatalf("AttachFeedback: %v", err)
	}

	rec, err := s.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Feedback.Satisfaction != 0.7 {
		t.Errorf("later feedback should win, got %f", rec.Feedback.Satisfaction)
	}
}

func TestWindowBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 10; i++ {
		rec := testRecord(fmt.Sprintf("req-%02d", i))
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// Count bound keeps the newest records, oldest first in the result.
	recs, err := s.Window(ctx, 24*time.Hour, 3)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	want := []string{"req-07", "req-08", "req-09"}
	for i, w := range want {
		if recs[i].RequestID != w {
			t.Errorf("position %d: expected %s, got %s", i, w, recs[i].RequestID)
		}
	}

	// Lookback bound excludes old records.
	recs, err = s.Window(ctx, 5*time.Minute+30*time.Second, 100)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(recs) != 5 {
		t.Errorf("expected 5 records within lookback, got %d", len(recs))
	}

	// Empty window is not an error.
	recs, err = s.Window(ctx, time.Nanosecond, 100)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected empty window, got %d", len(recs))
	}
}

func TestCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := s.Append(ctx, testRecord(fmt.Sprintf("req-%d", i))); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4, got %d", n)
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outcomes.db")
	ctx := context.Background()

	s, err := New(path, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Append(ctx, testRecord("req-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	rec, err := s2.Get(ctx, "req-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if rec.RequestID != "req-1" {
		t.Errorf("unexpected record %+v", rec)
	}
}
