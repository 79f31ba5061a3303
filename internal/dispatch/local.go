package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seekerlabs/seekerd/internal/types"
)

// HandlerFunc processes one agent request in-process.
type HandlerFunc func(ctx context.Context, req AgentRequest) (types.AgentResponse, error)

// LocalTransport runs agents in-process. It serves single-node deployments
// with no broker and doubles as the test transport.
type LocalTransport struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	fallback HandlerFunc
}

// NewLocalTransport creates a transport whose unregistered agents answer
// with a stub acknowledgment.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{
		handlers: make(map[string]HandlerFunc),
		fallback: func(ctx context.Context, req AgentRequest) (types.AgentResponse, error) {
			return types.AgentResponse{
				RequestID:  req.RequestID,
				AgentID:    req.AgentID,
				Success:    true,
				Confidence: req.Confidence,
				Content:    fmt.Sprintf("accepted by %s for %s", req.AgentID, req.Category),
			}, nil
		},
	}
}

// Register installs a handler for one agent ID.
func (t *LocalTransport) Register(agentID string, h HandlerFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[agentID] = h
}

// Send runs the agent's handler, measuring latency.
func (t *LocalTransport) Send(ctx context.Context, req AgentRequest) (types.AgentResponse, error) {
	t.mu.RLock()
	h, ok := t.handlers[req.AgentID]
	t.mu.RUnlock()
	if !ok {
		h = t.fallback
	}

	start := time.Now()
	resp, err := h(ctx, req)
	if err != nil {
		return types.AgentResponse{}, err
	}
	resp.RequestID = req.RequestID
	resp.AgentID = req.AgentID
	if resp.LatencyMs == 0 {
		resp.LatencyMs = time.Since(start).Milliseconds()
	}
	return resp, nil
}
