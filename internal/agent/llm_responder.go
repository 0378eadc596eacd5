package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"basegraph.app/boardroom/common/llm"
	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/scheduler"
)

const maxLLMAttempts = 2

// reply is the structured output requested from the model.
type reply struct {
	Type       string  `json:"type" jsonschema:"enum=proposal,enum=question,enum=challenge,enum=agreement,enum=synthesis,description=What kind of contribution this is"`
	Content    string  `json:"content" jsonschema:"description=Your contribution to the discussion"`
	Confidence float64 `json:"confidence" jsonschema:"minimum=0,maximum=1,description=How confident you are in your position (0 to 1)"`
}

type LLMResponder struct {
	client      llm.Client
	temperature *float64
	schema      any
}

func NewLLMResponder(client llm.Client, temperature float64) *LLMResponder {
	return &LLMResponder{
		client:      client,
		temperature: llm.Temp(temperature),
		schema:      llm.GenerateSchema[reply](),
	}
}

func (r *LLMResponder) Respond(ctx context.Context, req Request) (Response, error) {
	chatReq := llm.Request{
		SystemPrompt: systemPrompt(req.AgentID) + "\n\n" + instructions(req.Expect),
		Messages:     buildMessages(req),
		SchemaName:   "board_reply",
		Schema:       r.schema,
		Temperature:  r.temperature,
	}

	var out reply
	var err error
	for attempt := 1; attempt <= maxLLMAttempts; attempt++ {
		_, err = r.client.Chat(ctx, chatReq, &out)
		if err == nil {
			break
		}
		if !llm.IsRetryable(ctx, err) || attempt == maxLLMAttempts {
			return Response{}, fmt.Errorf("agent %s chat: %w", req.AgentID, err)
		}
		slog.InfoContext(ctx, "retrying agent chat", "attempt", attempt, "error", err)
	}

	confidence := out.Confidence
	return Response{
		Content:    out.Content,
		Type:       model.EventType(out.Type),
		Confidence: &confidence,
	}, nil
}

func instructions(phase scheduler.Phase) string {
	switch phase {
	case scheduler.PhaseProposal:
		return `Open the discussion with your proposal for the topic. Set type to "proposal".`
	case scheduler.PhaseSynthesis:
		return `The board has converged. Summarize the collective decision and the reasoning behind it. Set type to "synthesis".`
	default:
		return `Respond to the discussion so far. Set type to "agreement" if you support the emerging position, ` +
			`"challenge" if you object to it, or "question" if you need information before you can decide.`
	}
}

func buildMessages(req Request) []llm.Message {
	var opening strings.Builder
	fmt.Fprintf(&opening, "Topic: %s\n", req.Topic)
	if req.Brief.UserMessage != "" {
		fmt.Fprintf(&opening, "\nRequest from the user:\n%s\n", req.Brief.UserMessage)
	}
	if req.Brief.Context != "" {
		fmt.Fprintf(&opening, "\nBackground:\n%s\n", req.Brief.Context)
	}
	if req.Context != "" {
		fmt.Fprintf(&opening, "\nSupporting material:\n%s\n", req.Context)
	}

	msgs := make([]llm.Message, 0, len(req.History)+1)
	msgs = append(msgs, llm.Message{Role: "user", Content: opening.String()})

	for _, e := range req.History {
		role := "user"
		if e.FromAgent == req.AgentID {
			role = "assistant"
		}
		msgs = append(msgs, llm.Message{
			Role:    role,
			Name:    e.FromAgent,
			Content: formatEvent(e),
		})
	}
	return msgs
}

func formatEvent(e model.AgentEvent) string {
	if e.Confidence != nil {
		return fmt.Sprintf("[%s, confidence %.2f] %s", e.Type, *e.Confidence, e.Content)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Content)
}
