package orchestrator

import (
	"fmt"

	"github.com/seekerlabs/seekerd/internal/types"
)

// transitions is the request lifecycle graph. "closed" is terminal; a
// request in feedback_pending may stay there indefinitely.
var transitions = map[string][]string{
	types.StateReceived:        {types.StateClassified},
	types.StateClassified:      {types.StateRouted, types.StateEscalated},
	types.StateRouted:          {types.StateDispatched},
	types.StateDispatched:      {types.StateResponded},
	types.StateResponded:       {types.StateDispatched, types.StateFeedbackPending},
	types.StateFeedbackPending: {types.StateClosed},
	types.StateEscalated:       {types.StateClosed},
	types.StateClosed:          {},
}

// canTransition reports whether from → to is a legal lifecycle step.
func canTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition advances a request's state or reports the violation.
func (r *Request) transition(to string) error {
	if !canTransition(r.State, to) {
		return fmt.Errorf("invalid transition %s -> %s for request %s", r.State, to, r.ID)
	}
	r.State = to
	return nil
}
