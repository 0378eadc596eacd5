// Package agent invokes discussion participants and turns their replies into
// events the orchestrator can append to the log.
package agent

import (
	"context"
	"fmt"

	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/scheduler"
)

// Responder produces one agent's contribution for a turn. Implementations
// must honor ctx; the invoker abandons calls that outlive it.
type Responder interface {
	Respond(ctx context.Context, req Request) (Response, error)
}

// ContextProvider supplies supporting material (documents, prior decisions)
// that is passed to every agent alongside the topic.
type ContextProvider interface {
	Context(ctx context.Context, topic string, brief model.Brief) (string, error)
}

type Request struct {
	DiscussionID string
	AgentID      string
	Topic        string
	Round        int
	Expect       scheduler.Phase
	History      []model.AgentEvent
	Brief        model.Brief
	Context      string
}

// Response is the collaborator's raw reply. Type is the agent's own
// classification of what it said.
type Response struct {
	Content    string
	Type       model.EventType
	Confidence *float64
}

// AbstentionError means the agent produced no usable event for its turn.
// The round continues without it.
type AbstentionError struct {
	AgentID string
	Round   int
	Reason  string
	Err     error
}

func (e *AbstentionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent %s abstained in round %d: %s: %v", e.AgentID, e.Round, e.Reason, e.Err)
	}
	return fmt.Sprintf("agent %s abstained in round %d: %s", e.AgentID, e.Round, e.Reason)
}

func (e *AbstentionError) Unwrap() error {
	return e.Err
}
