package estatemcp

import (
	"context"

	"github.com/estatemcp/estatemcp/mcp"
)

// NoOpsCompletionService implements CompletionService without any network
// access. Each Complete call pops the next scripted candidate set; when the
// script runs out it keeps returning the default response. Useful in tests
// and offline runs.
type NoOpsCompletionService struct {
	script  [][]Candidate
	defResp []Candidate
	calls   int
}

// NoOpsOption configures a NoOpsCompletionService.
type NoOpsOption func(*NoOpsCompletionService)

// WithScriptedCandidates queues one Complete call's result.
func WithScriptedCandidates(candidates ...Candidate) NoOpsOption {
	return func(n *NoOpsCompletionService) {
		n.script = append(n.script, candidates)
	}
}

// WithDefaultCandidate sets the response used once the script is exhausted.
func WithDefaultCandidate(candidate Candidate) NoOpsOption {
	return func(n *NoOpsCompletionService) {
		n.defResp = []Candidate{candidate}
	}
}

// NewNoOpsCompletionService builds the service with optional scripting.
func NewNoOpsCompletionService(opts ...NoOpsOption) *NoOpsCompletionService {
	service := &NoOpsCompletionService{
		defResp: []Candidate{{
			Message: Message{
				Role:  RoleModel,
				Parts: []Part{TextPart{Text: "Default no-ops response"}},
			},
			TokenCount: 4,
		}},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Complete implements CompletionService.
func (n *NoOpsCompletionService) Complete(ctx context.Context, messages []Message, tools []mcp.Tool, config RequestConfig) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() { n.calls++ }()
	if n.calls < len(n.script) {
		return n.script[n.calls], nil
	}
	return n.defResp, nil
}

// Calls reports how many times Complete ran.
func (n *NoOpsCompletionService) Calls() int { return n.calls }
