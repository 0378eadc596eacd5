package agent

import (
	"context"
	"fmt"
	"time"

	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/scheduler"
)

// SimulatedResponder answers deterministically without calling a model. It
// lets the service run end to end when no LLM is configured: every agent
// proposes, agrees in the first debate round, and the facilitator
// summarizes.
type SimulatedResponder struct {
	// Delay is applied before each reply to mimic model latency.
	Delay time.Duration
}

func (s SimulatedResponder) Respond(ctx context.Context, req Request) (Response, error) {
	if s.Delay > 0 {
		select {
		case <-time.After(s.Delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}

	switch req.Expect {
	case scheduler.PhaseProposal:
		return Response{
			Type:       model.EventTypeProposal,
			Content:    fmt.Sprintf("%s proposes moving ahead with %q, subject to a review of its impact on %s.", req.AgentID, req.Topic, areaOf(req.AgentID)),
			Confidence: confidence(0.7),
		}, nil
	case scheduler.PhaseSynthesis:
		return Response{
			Type:       model.EventTypeSynthesis,
			Content:    fmt.Sprintf("The board supports %q after %d contributions.", req.Topic, len(req.History)),
			Confidence: confidence(0.85),
		}, nil
	default:
		return Response{
			Type:       model.EventTypeAgreement,
			Content:    fmt.Sprintf("%s agrees with the proposals on %q.", req.AgentID, req.Topic),
			Confidence: confidence(0.8),
		}, nil
	}
}

func areaOf(agentID string) string {
	if p, ok := personas[agentID]; ok {
		return p.focus
	}
	return "the organization"
}

func confidence(v float64) *float64 {
	return &v
}
