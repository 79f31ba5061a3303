package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/seekerlabs/seekerd/internal/agents"
	"github.com/seekerlabs/seekerd/internal/classifier"
	"github.com/seekerlabs/seekerd/internal/dispatch"
	"github.com/seekerlabs/seekerd/internal/outcome"
	"github.com/seekerlabs/seekerd/internal/router"
	"github.com/seekerlabs/seekerd/internal/taxonomy"
	"github.com/seekerlabs/seekerd/internal/types"
)

func testStack(t *testing.T, cfg Config) (*Orchestrator, *outcome.Store, *agents.Registry) {
	t.Helper()

	tax, err := taxonomy.NewStore([]taxonomy.Category{
		{
			ID: "product_search", Label: "Product Search", Priority: 1, Threshold: 0.60,
			Phrases:      []taxonomy.PhraseWeight{{Phrase: "find", Weight: 1.0}, {Phrase: "supplier", Weight: 1.0}},
			Capabilities: []string{"global_search"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("taxonomy: %v", err)
	}

	reg, err := agents.NewRegistry(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if _, err := reg.Register(agents.Def{ID: "search-1", Capabilities: []string{"global_search"}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	store, err := outcome.New(filepath.Join(t.TempDir(), "outcomes.db"), nil)
	if err != nil {
		t.Fatalf("outcome store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	transport := dispatch.NewLocalTransport()
	d := dispatch.NewDispatcher(transport, time.Second, nil)

	o := New(cfg,
		classifier.New(classifier.Config{}, nil),
		router.New(router.Config{}, nil),
		tax, reg, store, d, nil)
	return o, store, reg
}

func TestClassifyAndRouteHappyPath(t *testing.T) {
	o, store, reg := testStack(t, Config{})
	ctx := context.Background()

	req, err := o.ClassifyAndRoute(ctx, "user-1", "find steel suppliers")
	if err != nil {
		t.Fatalf("ClassifyAndRoute: %v", err)
	}
	if req.State != types.StateRouted {
		t.Errorf("expected routed at return, got %s", req.State)
	}
	if req.Classification.Primary != "product_search" {
		t.Errorf("unexpected category %s", req.Classification.Primary)
	}
	if len(req.Routing.Assignments) != 1 || req.Routing.Assignments[0].AgentID != "search-1" {
		t.Errorf("unexpected assignments %+v", req.Routing.Assignments)
	}

	o.Wait()

	got, err := o.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != types.StateFeedbackPending {
		t.Errorf("expected feedback_pending after dispatch, got %s", got.State)
	}
	if len(got.Responses) != 1 || !got.Responses[0].Success {
		t.Errorf("unexpected responses %+v", got.Responses)
	}

	// The outcome record mirrors the lifecycle.
	rec, err := store.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if rec.Classification.Primary != "product_search" || len(rec.Responses) != 1 {
		t.Errorf("record not mirrored: %+v", rec)
	}

	// The agent's rolling metrics saw the response.
	view, _ := reg.Snapshot().Agent("search-1")
	if view.Samples != 1 {
		t.Errorf("expected 1 agent sample, got %d", view.Samples)
	}
}

func TestEscalationPath(t *testing.T) {
	o, store, _ := testStack(t, Config{})
	ctx := context.Background()

	req, err := o.ClassifyAndRoute(ctx, "", "completely unrelated text")
	if err != nil {
		t.Fatalf("ClassifyAndRoute: %v", err)
	}
	if req.State != types.StateEscalated {
		t.Errorf("expected escalated, got %s", req.State)
	}
	if !req.Routing.Escalated || len(req.Routing.Assignments) != 0 {
		t.Errorf("unexpected decision %+v", req.Routing)
	}

	o.Wait()
	got, err := o.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != types.StateEscalated {
		t.Errorf("escalated request must not be dispatched, got %s", got.State)
	}
	if len(got.Responses) != 0 {
		t.Errorf("escalated request must have no responses, got %+v", got.Responses)
	}

	rec, err := store.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if !rec.Routing.Escalated {
		t.Error("escalation not mirrored to the store")
	}
}

func TestFeedbackAndClose(t *testing.T) {
	o, store, _ := testStack(t, Config{})
	ctx := context.Background()

	req, err := o.ClassifyAndRoute(ctx, "", "find suppliers")
	if err != nil {
		t.Fatalf("ClassifyAndRoute: %v", err)
	}
	o.Wait()

	correct := true
	if err := o.Feedback(ctx, req.ID, types.Feedback{Satisfaction: 0.9, Correct: &correct}); err != nil {
		t.Fatalf("Feedback: %v", err)
	}

	got, _ := o.Get(ctx, req.ID)
	if got.Feedback == nil || got.Feedback.Satisfaction != 0.9 {
		t.Errorf("feedback not attached: %+v", got.Feedback)
	}
	rec, _ := store.Get(ctx, req.ID)
	if !rec.HasKnownCorrectness() {
		t.Error("feedback not mirrored to the store")
	}

	if err := o.Close(req.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got, _ = o.Get(ctx, req.ID)
	if got.State != types.StateClosed {
		t.Errorf("expected closed, got %s", got.State)
	}

	// Closed is terminal.
	if err := o.Feedback(ctx, req.ID, types.Feedback{Satisfaction: 0.1}); err == nil {
		t.Error("feedback after close must be rejected")
	}
	if err := o.Close(req.ID); err == nil {
		t.Error("closing twice must be rejected")
	}
}

func TestFeedbackOutOfRangeRejected(t *testing.T) {
	o, store, _ := testStack(t, Config{})
	ctx := context.Background()

	req, err := o.ClassifyAndRoute(ctx, "", "find suppliers")
	if err != nil {
		t.Fatalf("ClassifyAndRoute: %v", err)
	}
	o.Wait()

	for _, sat := range []float64{7.5, -0.1, 1.001} {
		err := o.Feedback(ctx, req.ID, types.Feedback{Satisfaction: sat})
		if !errors.Is(err, ErrInvalidFeedback) {
			t.Errorf("satisfaction %v: expected ErrInvalidFeedback, got %v", sat, err)
		}
	}

	// Nothing must have leaked into the outcome log.
	rec, err := store.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	if rec.HasFeedback() {
		t.Errorf("rejected feedback reached the store: %+v", rec.Feedback)
	}
	got, _ := o.Get(ctx, req.ID)
	if got.Feedback != nil {
		t.Errorf("rejected feedback attached to the request: %+v", got.Feedback)
	}
	if got.State != types.StateFeedbackPending {
		t.Errorf("state changed after rejected feedback: %s", got.State)
	}
}

func TestCloseBeforeFeedbackPendingRejected(t *testing.T) {
	o, _, _ := testStack(t, Config{})

	// No dispatcher wait: the request may still be mid-dispatch, but an
	// escalated request closes fine while a routed one must not.
	req, err := o.ClassifyAndRoute(context.Background(), "", "no category here")
	if err != nil {
		t.Fatalf("ClassifyAndRoute: %v", err)
	}
	if err := o.Close(req.ID); err != nil {
		t.Errorf("escalated request should close: %v", err)
	}
}

func TestGetFallsBackToStoreAfterEviction(t *testing.T) {
	o, _, _ := testStack(t, Config{MaxRequests: 1})
	ctx := context.Background()

	first, err := o.ClassifyAndRoute(ctx, "user-1", "find suppliers")
	if err != nil {
		t.Fatalf("ClassifyAndRoute: %v", err)
	}
	o.Wait()
	if _, err := o.ClassifyAndRoute(ctx, "user-2", "find more suppliers"); err != nil {
		t.Fatalf("ClassifyAndRoute: %v", err)
	}
	o.Wait()

	got, err := o.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get after eviction: %v", err)
	}
	if got.ID != first.ID || got.UserID != "user-1" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.Classification.Primary != "product_search" {
		t.Errorf("classification lost through store fallback: %+v", got.Classification)
	}
}

func TestGetUnknownRequest(t *testing.T) {
	o, _, _ := testStack(t, Config{})
	if _, err := o.Get(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown request")
	}
}

func TestEventStream(t *testing.T) {
	o, _, _ := testStack(t, Config{})

	events, cancel := o.Subscribe()
	defer cancel()

	req, err := o.ClassifyAndRoute(context.Background(), "", "find suppliers")
	if err != nil {
		t.Fatalf("ClassifyAndRoute: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != "decision" || ev.RequestID != req.ID {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no decision event received")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	cases := []struct {
		from, to string
		ok       bool
	}{
		{types.StateReceived, types.StateClassified, true},
		{types.StateClassified, types.StateRouted, true},
		{types.StateClassified, types.StateEscalated, true},
		{types.StateRouted, types.StateDispatched, true},
		{types.StateDispatched, types.StateResponded, true},
		{types.StateResponded, types.StateDispatched, true},
		{types.StateResponded, types.StateFeedbackPending, true},
		{types.StateFeedbackPending, types.StateClosed, true},
		{types.StateEscalated, types.StateClosed, true},
		{types.StateReceived, types.StateRouted, false},
		{types.StateClassified, types.StateClosed, false},
		{types.StateClosed, types.StateReceived, false},
		{types.StateClosed, types.StateClosed, false},
		{types.StateEscalated, types.StateDispatched, false},
	}
	for _, tc := range cases {
		if got := canTransition(tc.from, tc.to); got != tc.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}
