package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/seekerlabs/seekerd/internal/types"
)

func fanOutDecision(agentIDs ...string) types.RoutingDecision {
	d := types.RoutingDecision{RequestID: "req-1", Logic: types.LogicFanOut}
	for _, id := range agentIDs {
		d.Assignments = append(d.Assignments, types.AgentAssignment{
			AgentID: id, Category: "product_search", Confidence: 0.8,
		})
	}
	return d
}

func TestDispatchFanOut(t *testing.T) {
	transport := NewLocalTransport()
	transport.Register("agent-a", func(ctx context.Context, req AgentRequest) (types.AgentResponse, error) {
		return types.AgentResponse{Success: true, Content: "from a"}, nil
	})
	transport.Register("agent-b", func(ctx context.Context, req AgentRequest) (types.AgentResponse, error) {
		return types.AgentResponse{Success: true, Content: "from b"}, nil
	})
	d := NewDispatcher(transport, time.Second, nil)

	responses := d.Dispatch(context.Background(), "find steel sheets", fanOutDecision("agent-a", "agent-b"))
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	// Responses come back in assignment order.
	if responses[0].AgentID != "agent-a" || responses[0].Content != "from a" {
		t.Errorf("unexpected first response %+v", responses[0])
	}
	if responses[1].AgentID != "agent-b" || responses[1].Content != "from b" {
		t.Errorf("unexpected second response %+v", responses[1])
	}
	for _, r := range responses {
		if r.RequestID != "req-1" {
			t.Errorf("request id not threaded through: %+v", r)
		}
		if r.ReceivedAt.IsZero() {
			t.Errorf("ReceivedAt not stamped: %+v", r)
		}
	}
}

func TestDispatchFailureBecomesFailedResponse(t *testing.T) {
	transport := NewLocalTransport()
	transport.Register("agent-bad", func(ctx context.Context, req AgentRequest) (types.AgentResponse, error) {
		return types.AgentResponse{}, errors.New("broker unreachable")
	})
	transport.Register("agent-good", func(ctx context.Context, req AgentRequest) (types.AgentResponse, error) {
		return types.AgentResponse{Success: true}, nil
	})
	d := NewDispatcher(transport, time.Second, nil)

	responses := d.Dispatch(context.Background(), "text", fanOutDecision("agent-bad", "agent-good"))
	if len(responses) != 2 {
		t.Fatalf("expected 2 responses, got %d", len(responses))
	}
	if responses[0].Success {
		t.Error("failed transport should yield a failed response")
	}
	if responses[0].Error == "" {
		t.Error("failure reason should be recorded")
	}
	if !responses[1].Success {
		t.Error("one agent's failure must not poison the other")
	}
}

func TestDispatchPerAgentTimeout(t *testing.T) {
	transport := NewLocalTransport()
	transport.Register("agent-slow", func(ctx context.Context, req AgentRequest) (types.AgentResponse, error) {
		select {
		case <-time.After(5 * time.Second):
			return types.AgentResponse{Success: true}, nil
		case <-ctx.Done():
			return types.AgentResponse{}, ctx.Err()
		}
	})
	d := NewDispatcher(transport, 20*time.Millisecond, nil)

	start := time.Now()
	responses := d.Dispatch(context.Background(), "text", fanOutDecision("agent-slow"))
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not enforced, took %v", elapsed)
	}
	if responses[0].Success {
		t.Error("timed-out agent should report failure")
	}
}

func TestLocalTransportFallback(t *testing.T) {
	transport := NewLocalTransport()
	d := NewDispatcher(transport, time.Second, nil)

	responses := d.Dispatch(context.Background(), "text", fanOutDecision("never-registered"))
	if !responses[0].Success {
		t.Error("fallback handler should acknowledge")
	}
	if responses[0].AgentID != "never-registered" {
		t.Errorf("unexpected agent id %s", responses[0].AgentID)
	}
}
