// Package types provides shared value records used across seekerd packages
// to avoid import cycles between the classifier, router, orchestrator and
// outcome store. Everything here is serializable data with no behavior.
package types

import "time"

// Request lifecycle states. Transitions are enforced by the orchestrator;
// "closed" is the only terminal state.
const (
	StateReceived        = "received"
	StateClassified      = "classified"
	StateRouted          = "routed"
	StateDispatched      = "dispatched"
	StateResponded       = "responded"
	StateFeedbackPending = "feedback_pending"
	StateEscalated       = "escalated"
	StateClosed          = "closed"
)

// Routing logic labels carried on decisions for analytics.
const (
	LogicAutoRoute = "auto-route"
	LogicFanOut    = "fan-out"
	LogicEscalate  = "escalate"
)

// CategoryUnclassified is the designated category for requests that match
// no phrase in any category.
const CategoryUnclassified = "unclassified"

// CategoryScore pairs a category with its raw score, used for the ordered
// secondary-category list.
type CategoryScore struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// ClassificationResult is the immutable output of one classifier call.
type ClassificationResult struct {
	RequestID       string             `json:"request_id"`
	Scores          map[string]float64 `json:"scores"`
	Primary         string             `json:"primary"`
	Confidence      float64            `json:"confidence"`
	Secondary       []CategoryScore    `json:"secondary,omitempty"`
	SnapshotVersion uint64             `json:"snapshot_version"`
}

// AgentAssignment is a single (agent, category) assignment within a decision.
type AgentAssignment struct {
	AgentID    string  `json:"agent_id"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// RoutingDecision is the immutable output of one router call.
type RoutingDecision struct {
	RequestID       string            `json:"request_id"`
	Assignments     []AgentAssignment `json:"assignments"`
	Confidence      float64           `json:"confidence"`
	Escalated       bool              `json:"escalated"`
	Logic           string            `json:"logic"`
	EstimatedMs     int64             `json:"estimated_ms"`
	SnapshotVersion uint64            `json:"snapshot_version"`
	Timestamp       time.Time         `json:"timestamp"`
}

// AgentResponse summarizes one agent's answer to a dispatched assignment.
type AgentResponse struct {
	RequestID  string    `json:"request_id"`
	AgentID    string    `json:"agent_id"`
	Success    bool      `json:"success"`
	LatencyMs  int64     `json:"latency_ms"`
	Confidence float64   `json:"confidence"`
	Content    string    `json:"content,omitempty"`
	Error      string    `json:"error,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Feedback carries the user/automatic signals the adaptive loop learns from.
// Correct is nil when correctness is unknown; absence of feedback is never
// interpreted as dissatisfaction.
type Feedback struct {
	Satisfaction float64   `json:"satisfaction"`
	Correct      *bool     `json:"correct,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// OutcomeRecord ties a request's classification, routing, responses and
// feedback together. It is the append-only unit of truth for learning;
// each request produces exactly one record.
type OutcomeRecord struct {
	RequestID      string               `json:"request_id"`
	UserID         string               `json:"user_id,omitempty"`
	Classification ClassificationResult `json:"classification"`
	Routing        RoutingDecision      `json:"routing"`
	Responses      []AgentResponse      `json:"responses,omitempty"`
	Feedback       *Feedback            `json:"feedback,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

// HasKnownCorrectness reports whether the record carries a correctness flag.
func (r *OutcomeRecord) HasKnownCorrectness() bool {
	return r.Feedback != nil && r.Feedback.Correct != nil
}

// HasFeedback reports whether any feedback has been attached.
func (r *OutcomeRecord) HasFeedback() bool {
	return r.Feedback != nil
}
