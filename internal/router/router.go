// Package router validates routing decisions made by an external
// oracle. The oracle (typically a language model) proposes which agent
// definition should handle a request; its output is untrusted and is
// checked against the candidate set before anything acts on it.
package router

import (
	"context"
	"fmt"
)

// Decision is the oracle's proposal for one request.
type Decision struct {
	// Choice is the selected candidate definition id.
	Choice string `json:"choice"`
	// RewrittenTask is an optional clarified restatement of the request.
	RewrittenTask string `json:"rewritten_task,omitempty"`
}

// Oracle proposes a routing decision for a request. Implementations
// are external and fallible; Router assumes nothing about the validity
// of what comes back.
type Oracle interface {
	Route(ctx context.Context, candidates []string, request string) (Decision, error)
}

// Router wraps an Oracle with validation.
type Router struct {
	oracle Oracle
}

// NewRouter creates a Router over the given oracle.
func NewRouter(oracle Oracle) *Router {
	return &Router{oracle: oracle}
}

// Pick asks the oracle to route the request and validates the answer:
// the choice must be one of the candidates, and an empty rewritten task
// falls back to the original request text.
func (r *Router) Pick(ctx context.Context, candidates []string, request string) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, fmt.Errorf("route request: no candidates")
	}

	decision, err := r.oracle.Route(ctx, candidates, request)
	if err != nil {
		return Decision{}, fmt.Errorf("route request: %w", err)
	}

	known := false
	for _, candidate := range candidates {
		if candidate == decision.Choice {
			known = true
			break
		}
	}
	if !known {
		return Decision{}, fmt.Errorf("route request: oracle chose unknown candidate %q", decision.Choice)
	}

	if decision.RewrittenTask == "" {
		decision.RewrittenTask = request
	}
	return decision, nil
}
