// Package orchestrator owns the request lifecycle: it accepts request text,
// runs classification and routing against the current snapshots, mirrors
// every request into the outcome store, dispatches assignments to the agent
// fleet and attaches responses and feedback as they arrive.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seekerlabs/seekerd/internal/agents"
	"github.com/seekerlabs/seekerd/internal/classifier"
	"github.com/seekerlabs/seekerd/internal/dispatch"
	"github.com/seekerlabs/seekerd/internal/outcome"
	"github.com/seekerlabs/seekerd/internal/router"
	"github.com/seekerlabs/seekerd/internal/taxonomy"
	"github.com/seekerlabs/seekerd/internal/types"
)

// Request is the orchestrator's view of one request's lifecycle.
type Request struct {
	ID             string                     `json:"id"`
	UserID         string                     `json:"user_id,omitempty"`
	Text           string                     `json:"-"`
	State          string                     `json:"state"`
	Classification types.ClassificationResult `json:"classification"`
	Routing        types.RoutingDecision      `json:"routing"`
	Responses      []types.AgentResponse      `json:"responses,omitempty"`
	Feedback       *types.Feedback            `json:"feedback,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	UpdatedAt      time.Time                  `json:"updated_at"`
}

// Config tunes the orchestrator.
type Config struct {
	// MaxRequests bounds in-memory lifecycle retention. Evicted requests
	// remain queryable from the outcome store.
	MaxRequests int `json:"max_requests"`
}

// Orchestrator wires the engine together.
type Orchestrator struct {
	cfg        Config
	logger     *slog.Logger
	engine     *classifier.Engine
	router     *router.Router
	taxonomy   *taxonomy.Store
	registry   *agents.Registry
	outcomes   *outcome.Store
	dispatcher *dispatch.Dispatcher
	bus        *eventBus

	mu       sync.RWMutex
	requests map[string]*Request
	order    []string

	wg sync.WaitGroup
}

// New creates an Orchestrator. The dispatcher may be nil; escalated and
// undispatchable requests then simply stay undispatched.
func New(cfg Config, engine *classifier.Engine, r *router.Router, tax *taxonomy.Store, reg *agents.Registry, store *outcome.Store, d *dispatch.Dispatcher, logger *slog.Logger) *Orchestrator {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger.With("component", "orchestrator"),
		engine:     engine,
		router:     r,
		taxonomy:   tax,
		registry:   reg,
		outcomes:   store,
		dispatcher: d,
		bus:        newEventBus(),
		requests:   make(map[string]*Request),
	}
}

// ClassifyAndRoute is the single entry point: it classifies the text,
// produces a routing decision, persists the outcome record and kicks off
// dispatch for non-escalated decisions. The returned Request reflects the
// state at decision time.
func (o *Orchestrator) ClassifyAndRoute(ctx context.Context, userID, text string) (Request, error) {
	req := &Request{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      text,
		State:     types.StateReceived,
		CreatedAt: time.Now(),
	}

	taxSnap := o.taxonomy.Snapshot()
	req.Classification = o.engine.Classify(req.ID, text, taxSnap)
	if err := req.transition(types.StateClassified); err != nil {
		return Request{}, err
	}

	fleet := o.registry.Snapshot()
	decision, routeErr := o.router.Route(req.Classification, taxSnap, fleet)
	if routeErr != nil {
		// Capability gaps are a fleet configuration fault; the decision is
		// still valid for the categories that could route.
		o.logger.Warn("routing reported capability gaps", "request_id", req.ID, "error", routeErr)
	}
	req.Routing = decision

	next := types.StateRouted
	if decision.Escalated {
		next = types.StateEscalated
	}
	if err := req.transition(next); err != nil {
		return Request{}, err
	}
	req.UpdatedAt = time.Now()

	record := types.OutcomeRecord{
		RequestID:      req.ID,
		UserID:         userID,
		Classification: req.Classification,
		Routing:        decision,
		CreatedAt:      req.CreatedAt,
	}
	if err := o.outcomes.Append(ctx, record); err != nil {
		return Request{}, fmt.Errorf("persist outcome: %w", err)
	}

	o.mu.Lock()
	o.requests[req.ID] = req
	o.order = append(o.order, req.ID)
	o.evictLocked()
	snapshot := *req
	o.mu.Unlock()

	o.bus.publish(Event{Type: "decision", RequestID: req.ID, State: snapshot.State, Payload: decision})

	if !decision.Escalated && o.dispatcher != nil {
		o.wg.Add(1)
		go o.dispatchAndCollect(req.ID, text, decision)
	}

	return snapshot, nil
}

// dispatchAndCollect fans the decision out to its agents and folds the
// responses back into the lifecycle, outcome store and agent metrics.
func (o *Orchestrator) dispatchAndCollect(requestID, text string, decision types.RoutingDecision) {
	defer o.wg.Done()

	if err := o.setState(requestID, types.StateDispatched); err != nil {
		o.logger.Error("dispatch state transition failed", "request_id", requestID, "error", err)
		return
	}

	responses := o.dispatcher.Dispatch(context.Background(), text, decision)

	o.mu.Lock()
	if req, ok := o.requests[requestID]; ok {
		req.Responses = append(req.Responses, responses...)
		req.UpdatedAt = time.Now()
	}
	o.mu.Unlock()

	if err := o.setState(requestID, types.StateResponded); err != nil {
		o.logger.Error("responded state transition failed", "request_id", requestID, "error", err)
	}
	if err := o.setState(requestID, types.StateFeedbackPending); err != nil {
		o.logger.Error("feedback_pending state transition failed", "request_id", requestID, "error", err)
	}

	ctx := context.Background()
	if err := o.outcomes.AttachResponses(ctx, requestID, responses); err != nil {
		o.logger.Error("failed to attach responses", "request_id", requestID, "error", err)
	}
	for _, resp := range responses {
		if err := o.registry.RecordResponse(resp.AgentID, resp.Success, resp.LatencyMs, -1); err != nil {
			o.logger.Warn("failed to record agent sample", "agent", resp.AgentID, "error", err)
		}
	}

	o.bus.publish(Event{Type: "responses", RequestID: requestID, State: types.StateFeedbackPending, Payload: responses})
}

// ErrInvalidFeedback reports a satisfaction value outside [0,1].
var ErrInvalidFeedback = errors.New("satisfaction outside [0,1]")

// Feedback attaches satisfaction/correctness signals to a request. It is
// accepted any time before the request closes. Satisfaction must lie in
// [0,1]; anything else is rejected before it can enter the outcome log.
func (o *Orchestrator) Feedback(ctx context.Context, requestID string, fb types.Feedback) error {
	if fb.Satisfaction < 0 || fb.Satisfaction > 1 {
		return fmt.Errorf("%w: %.3f", ErrInvalidFeedback, fb.Satisfaction)
	}
	if fb.ReceivedAt.IsZero() {
		fb.ReceivedAt = time.Now()
	}

	o.mu.Lock()
	if req, ok := o.requests[requestID]; ok {
		if req.State == types.StateClosed {
			o.mu.Unlock()
			return fmt.Errorf("request %s is closed", requestID)
		}
		req.Feedback = &fb
		req.UpdatedAt = time.Now()
	}
	o.mu.Unlock()

	if err := o.outcomes.AttachFeedback(ctx, requestID, fb); err != nil {
		return err
	}

	o.bus.publish(Event{Type: "feedback", RequestID: requestID, Payload: fb})
	return nil
}

// Close moves a request into its terminal state.
func (o *Orchestrator) Close(requestID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	req, ok := o.requests[requestID]
	if !ok {
		return fmt.Errorf("request not found: %s", requestID)
	}
	if err := req.transition(types.StateClosed); err != nil {
		return err
	}
	req.UpdatedAt = time.Now()
	return nil
}

// Get returns a copy of a request's lifecycle record. Requests evicted from
// memory fall back to the outcome store.
func (o *Orchestrator) Get(ctx context.Context, requestID string) (Request, error) {
	o.mu.RLock()
	req, ok := o.requests[requestID]
	if ok {
		snapshot := *req
		o.mu.RUnlock()
		return snapshot, nil
	}
	o.mu.RUnlock()

	rec, err := o.outcomes.Get(ctx, requestID)
	if err != nil {
		return Request{}, err
	}
	state := types.StateFeedbackPending
	if rec.Routing.Escalated {
		state = types.StateEscalated
	}
	out := Request{
		ID:             rec.RequestID,
		UserID:         rec.UserID,
		State:          state,
		Classification: rec.Classification,
		Routing:        rec.Routing,
		Responses:      rec.Responses,
		Feedback:       rec.Feedback,
		CreatedAt:      rec.CreatedAt,
	}
	return out, nil
}

// Subscribe registers an event stream consumer. The returned cancel
// function must be called to release the subscription.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	return o.bus.subscribe()
}

// Wait blocks until all in-flight dispatches finish. Test and shutdown
// helper.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// setState applies one guarded transition and publishes it.
func (o *Orchestrator) setState(requestID, state string) error {
	o.mu.Lock()
	req, ok := o.requests[requestID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("request not found: %s", requestID)
	}
	if err := req.transition(state); err != nil {
		o.mu.Unlock()
		return err
	}
	req.UpdatedAt = time.Now()
	o.mu.Unlock()

	o.bus.publish(Event{Type: "state", RequestID: requestID, State: state})
	return nil
}

// evictLocked trims in-memory retention to MaxRequests. Caller holds o.mu.
func (o *Orchestrator) evictLocked() {
	for len(o.order) > o.cfg.MaxRequests {
		oldest := o.order[0]
		o.order = o.order[1:]
		delete(o.requests, oldest)
	}
}
