package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/boardroom/common/logger"
	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/scheduler"
)

// DefaultCallTimeoutFloor is the shortest per-call timeout CallTimeout returns.
const DefaultCallTimeoutFloor = 10 * time.Second

// CallTimeout spreads the discussion budget over its rounds, never going
// below floor.
func CallTimeout(plan model.Plan, floor time.Duration) time.Duration {
	if floor <= 0 {
		floor = DefaultCallTimeoutFloor
	}
	if plan.MaxRounds <= 0 {
		return floor
	}
	perRound := plan.Timeout() / time.Duration(plan.MaxRounds)
	return max(perRound, floor)
}

type InvokerConfig struct {
	Timeout time.Duration
	Context ContextProvider
}

type Invoker struct {
	responder Responder
	timeout   time.Duration
	context   ContextProvider
}

func NewInvoker(responder Responder, cfg InvokerConfig) *Invoker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeoutFloor
	}
	return &Invoker{
		responder: responder,
		timeout:   timeout,
		context:   cfg.Context,
	}
}

// Invoke runs one turn. It returns the event to append, or an
// *AbstentionError when the agent failed, timed out, or replied with
// something the turn does not accept. The event carries no id or timestamp;
// the log assigns those on append.
func (i *Invoker) Invoke(ctx context.Context, turn scheduler.Turn, req Request) (model.AgentEvent, error) {
	req.AgentID = turn.AgentID
	req.Round = turn.Round
	req.Expect = turn.Phase

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		AgentID: logger.Ptr(turn.AgentID),
		Round:   logger.Ptr(turn.Round),
	})

	sc := logger.StartSpan(ctx, "agent.invoke")
	defer sc.End()
	ctx = sc.Context()
	sc.SetAttributes(
		attribute.String("agent.id", turn.AgentID),
		attribute.Int("discussion.round", turn.Round),
		attribute.String("turn.phase", string(turn.Phase)),
	)

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	if i.context != nil && req.Context == "" {
		extra, err := i.context.Context(ctx, req.Topic, req.Brief)
		if err != nil {
			slog.WarnContext(ctx, "context provider failed, continuing without it", "error", err)
		} else {
			req.Context = extra
		}
	}

	start := time.Now()
	resp, err := i.call(ctx, req)
	if err != nil {
		reason := "responder error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("no response within %s", i.timeout)
		}
		abst := &AbstentionError{AgentID: turn.AgentID, Round: turn.Round, Reason: reason, Err: err}
		sc.RecordError(abst)
		slog.WarnContext(ctx, "agent abstained",
			"reason", reason,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds())
		return model.AgentEvent{}, abst
	}

	event, reason := toEvent(turn, resp)
	if reason != "" {
		abst := &AbstentionError{AgentID: turn.AgentID, Round: turn.Round, Reason: reason}
		sc.RecordError(abst)
		slog.WarnContext(ctx, "agent reply rejected",
			"reason", reason,
			"declared_type", string(resp.Type))
		return model.AgentEvent{}, abst
	}

	slog.DebugContext(ctx, "agent responded",
		"type", string(event.Type),
		"duration_ms", time.Since(start).Milliseconds(),
		"content", logger.Truncate(event.Content, 120))

	return event, nil
}

// call runs the responder on its own goroutine so a responder that ignores
// ctx still cannot hold the round past its deadline.
func (i *Invoker) call(ctx context.Context, req Request) (Response, error) {
	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("responder panic: %v", r)}
			}
		}()
		resp, err := i.responder.Respond(ctx, req)
		done <- result{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// toEvent validates resp against turn and returns the event, or a non-empty
// rejection reason.
func toEvent(turn scheduler.Turn, resp Response) (model.AgentEvent, string) {
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return model.AgentEvent{}, "empty content"
	}

	eventType := turn.Expected()
	if eventType == "" {
		if !turn.Accepts(resp.Type) {
			return model.AgentEvent{}, fmt.Sprintf("type %q not allowed in %s turn", resp.Type, turn.Phase)
		}
		eventType = resp.Type
	}

	confidence := resp.Confidence
	if confidence != nil {
		c := *confidence
		if math.IsNaN(c) || c < 0 || c > 1 {
			return model.AgentEvent{}, fmt.Sprintf("confidence %v outside [0, 1]", c)
		}
		confidence = &c
	}
	if eventType == model.EventTypeQuestion {
		confidence = nil
	}

	return model.AgentEvent{
		Type:       eventType,
		FromAgent:  turn.AgentID,
		Content:    content,
		Confidence: confidence,
		Round:      turn.Round,
	}, ""
}
