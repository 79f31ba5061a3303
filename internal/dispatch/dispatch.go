// Package dispatch delivers routing decisions to the agent fleet and
// collects per-agent response summaries. The orchestrator only sees the
// Dispatcher; transports (MQTT, in-process) are swappable.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seekerlabs/seekerd/internal/types"
)

// AgentRequest is the unit of work sent to a single agent.
type AgentRequest struct {
	RequestID  string  `json:"request_id"`
	AgentID    string  `json:"agent_id"`
	Category   string  `json:"category"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transport delivers one request to one agent and waits for its response.
type Transport interface {
	Send(ctx context.Context, req AgentRequest) (types.AgentResponse, error)
}

// Dispatcher fans a decision's assignments out over a Transport.
type Dispatcher struct {
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a Dispatcher with a per-agent timeout.
func NewDispatcher(transport Transport, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		timeout:   timeout,
		logger:    logger.With("component", "dispatch"),
	}
}

// Dispatch sends the request text to every assigned agent concurrently and
// returns one response summary per assignment. Transport failures and
// timeouts are recorded as failed responses rather than aborting the
// fan-out; an agent's failure is a data point, not a dispatch error.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, decision types.RoutingDecision) []types.AgentResponse {
	responses := make([]types.AgentResponse, len(decision.Assignments))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for i, assignment := range decision.Assignments {
		i, assignment := i, assignment
		g.Go(func() error {
			agentCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			start := time.Now()
			resp, err := d.transport.Send(agentCtx, AgentRequest{
				RequestID:  decision.RequestID,
				AgentID:    assignment.AgentID,
				Category:   assignment.Category,
				Text:       text,
				Confidence: assignment.Confidence,
			})
			if err != nil {
				d.logger.Warn("agent dispatch failed",
					"request_id", decision.RequestID,
					"agent", assignment.AgentID,
					"error", err,
				)
				resp = types.AgentResponse{
					RequestID: decision.RequestID,
					AgentID:   assignment.AgentID,
					Success:   false,
					LatencyMs: time.Since(start).Milliseconds(),
					Error:     err.Error(),
				}
			}
			resp.ReceivedAt = time.Now()

			mu.Lock()
			responses[i] = resp
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures are summaries

	return responses
}
