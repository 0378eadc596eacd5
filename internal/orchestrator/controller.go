// Package orchestrator drives discussions from the proposal round to a
// terminal status. Each discussion is owned by one Controller goroutine; the
// Manager keeps the registry of running and recently finished discussions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/boardroom/common/logger"
	"basegraph.app/boardroom/internal/agent"
	"basegraph.app/boardroom/internal/consensus"
	"basegraph.app/boardroom/internal/eventlog"
	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/scheduler"
)

var (
	ErrAlreadyRunning = errors.New("discussion already running")
	ErrShuttingDown   = errors.New("orchestrator is shutting down")
)

// Invoker runs a single agent turn. *agent.Invoker satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error)
}

// Archiver durably records a terminal discussion. It is called once per
// discussion, after the final snapshot is published.
type Archiver interface {
	Archive(ctx context.Context, d *model.Discussion, plan model.Plan) error
}

// Publisher receives every committed snapshot, e.g. to share it with other
// replicas.
type Publisher interface {
	Publish(ctx context.Context, d *model.Discussion) error
}

type ControllerConfig struct {
	ID      string
	Plan    model.Plan
	Brief   model.Brief
	Invoker Invoker

	// MaxParallel caps concurrent agent calls per round. Zero runs every
	// scheduled agent at once.
	MaxParallel int

	Archiver  Archiver
	Publisher Publisher

	// Now is the clock used for timestamps and the global timeout.
	Now func() time.Time
}

// Controller is the single writer for one discussion.
type Controller struct {
	id        string
	plan      model.Plan
	brief     model.Brief
	invoker   Invoker
	sched     *scheduler.Scheduler
	log       *eventlog.Log
	parallel  int
	archiver  Archiver
	publisher Publisher
	now       func() time.Time
	start     time.Time

	snapshot  atomic.Pointer[model.Discussion]
	started   atomic.Bool
	cancelled atomic.Bool
	done      chan struct{}
}

// NewController creates the discussion in the active state. It does not
// start progression; call Run.
func NewController(cfg ControllerConfig) *Controller {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Controller{
		id:        cfg.ID,
		plan:      cfg.Plan,
		brief:     cfg.Brief,
		invoker:   cfg.Invoker,
		sched:     scheduler.New(cfg.Plan),
		log:       eventlog.New(now),
		parallel:  cfg.MaxParallel,
		archiver:  cfg.Archiver,
		publisher: cfg.Publisher,
		now:       now,
		start:     now().UTC().Truncate(eventlog.Resolution),
		done:      make(chan struct{}),
	}

	c.snapshot.Store(&model.Discussion{
		ID:           c.id,
		Topic:        c.plan.DiscussionTopic,
		Participants: append([]string(nil), c.plan.RequiredAgents...),
		Status:       model.DiscussionStatusActive,
		Events:       []model.AgentEvent{},
		StartTime:    c.start,
	})
	return c
}

func (c *Controller) ID() string {
	return c.id
}

// Snapshot returns a copy of the latest committed state. It never blocks on
// a round in progress.
func (c *Controller) Snapshot() *model.Discussion {
	return c.snapshot.Load().Clone()
}

// Done is closed once the discussion reaches a terminal status.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Cancel asks the discussion to stop before its next round. Calls already in
// flight run to completion or timeout.
func (c *Controller) Cancel() {
	c.cancelled.Store(true)
}

// Run starts the owning goroutine. It returns immediately; a second call
// returns ErrAlreadyRunning.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DiscussionID: logger.Ptr(c.id),
		Component:    "boardroom.orchestrator.controller",
	})

	c.publish(ctx)
	go c.loop(ctx)
	return nil
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)

	slog.InfoContext(ctx, "discussion started",
		"topic", logger.Truncate(c.plan.DiscussionTopic, 120),
		"agents", c.plan.RequiredAgents,
		"max_rounds", c.plan.MaxRounds)

	for round := 0; ; round++ {
		if c.cancelled.Load() || ctx.Err() != nil {
			slog.InfoContext(ctx, "discussion cancelled before round", "round", round)
			c.finish(ctx, model.DiscussionStatusNeedsMoreInput, nil)
			break
		}
		if c.tick(ctx, round) {
			break
		}
	}

	c.archive(ctx)
}

// tick runs one round and reports whether the discussion is now terminal.
// A panic anywhere in the round ends the discussion as needs_more_input.
func (c *Controller) tick(ctx context.Context, round int) (terminal bool) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Round: logger.Ptr(round)})

	sc := logger.StartSpan(ctx, "orchestrator.round")
	defer sc.End()
	ctx = sc.Context()
	sc.SetAttributes(
		attribute.String("discussion.id", c.id),
		attribute.Int("discussion.round", round),
	)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("internal fault in round %d: %v", round, r)
			sc.RecordError(err)
			slog.ErrorContext(ctx, "discussion tick panicked",
				"error", err,
				"stack", string(debug.Stack()))
			c.finish(ctx, model.DiscussionStatusNeedsMoreInput, nil)
			terminal = true
		}
	}()

	turns := c.sched.Turns(round, c.log.Snapshot())
	if len(turns) == 0 {
		slog.InfoContext(ctx, "no agents left to schedule")
		c.finish(ctx, model.DiscussionStatusNeedsMoreInput, nil)
		return true
	}

	for _, event := range c.runRound(ctx, turns) {
		c.log.Append(event)
	}
	c.publish(ctx)

	res := consensus.Evaluate(c.log.Snapshot(), round, c.plan)
	sc.SetAttributes(attribute.Float64("consensus.agreement_ratio", res.AgreementRatio))
	slog.InfoContext(ctx, "round evaluated",
		"contributors", len(res.Contributors),
		"agreeing", len(res.Agreeing),
		"agreement_ratio", res.AgreementRatio,
		"aggregate_confidence", res.AggregateConfidence,
		"ready", res.Ready)

	switch {
	case res.Ready:
		c.synthesize(ctx, round, res)
		return true
	case round+1 >= c.plan.MaxRounds:
		slog.InfoContext(ctx, "rounds exhausted without consensus")
		c.finish(ctx, model.DiscussionStatusNeedsMoreInput, nil)
		return true
	case c.now().Sub(c.start) >= c.plan.Timeout():
		slog.InfoContext(ctx, "discussion timed out", "timeout_minutes", c.plan.TimeoutMinutes)
		c.finish(ctx, model.DiscussionStatusNeedsMoreInput, nil)
		return true
	}
	return false
}

type turnResult struct {
	event model.AgentEvent
	err   error
	fault any
}

// runRound invokes every turn with bounded parallelism and waits for all of
// them. Events are returned in turn order; abstentions are dropped.
func (c *Controller) runRound(ctx context.Context, turns []scheduler.Turn) []model.AgentEvent {
	limit := c.parallel
	if limit <= 0 || limit > len(turns) {
		limit = len(turns)
	}

	history := c.log.Snapshot()
	results := make([]turnResult, len(turns))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, turn := range turns {
		wg.Add(1)
		go func(idx int, t scheduler.Turn) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[idx] = turnResult{fault: r}
				}
			}()

			sem <- struct{}{}
			defer func() { <-sem }()

			event, err := c.invoker.Invoke(ctx, t, c.request(history))
			results[idx] = turnResult{event: event, err: err}
		}(i, turn)
	}
	wg.Wait()

	events := make([]model.AgentEvent, 0, len(turns))
	for i, r := range results {
		if r.fault != nil {
			panic(fmt.Sprintf("agent %s: %v", turns[i].AgentID, r.fault))
		}
		if r.err != nil {
			var abst *agent.AbstentionError
			if !errors.As(r.err, &abst) {
				slog.WarnContext(ctx, "agent call failed", "agent_id", turns[i].AgentID, "error", r.err)
			}
			continue
		}
		events = append(events, r.event)
	}
	return events
}

func (c *Controller) request(history []model.AgentEvent) agent.Request {
	return agent.Request{
		DiscussionID: c.id,
		Topic:        c.plan.DiscussionTopic,
		History:      model.CloneEvents(history),
		Brief:        c.brief,
	}
}

// synthesize asks the facilitator for the closing summary and records the
// consensus. The threshold was met, so consensus is recorded even when the
// facilitator abstains.
func (c *Controller) synthesize(ctx context.Context, round int, res consensus.Result) {
	result := &model.ConsensusResult{
		Confidence:       res.AggregateConfidence,
		SupportingAgents: append([]string{}, res.Agreeing...),
	}

	turn := c.sched.SynthesisTurn(round)
	event, err := c.invoker.Invoke(ctx, turn, c.request(c.log.Snapshot()))
	if err == nil {
		_, stored := c.log.Append(event)
		result.Decision = stored.Content
		result.Reasoning = reasoning(res)
	} else {
		slog.WarnContext(ctx, "facilitator abstained from synthesis, using strongest agreement", "error", err)
		best := strongest(res.AgreeingEvents)
		result.Decision = best.Content
		result.Reasoning = fmt.Sprintf("%s (facilitator %s did not respond; decision taken from %s)",
			reasoning(res), c.plan.Facilitator, best.FromAgent)
	}

	c.finish(ctx, model.DiscussionStatusConsensusReached, result)
}

func reasoning(res consensus.Result) string {
	return fmt.Sprintf("%d of %d contributing agents agreed in round %d (agreement ratio %.2f, mean confidence %.2f)",
		len(res.Agreeing), len(res.Contributors), res.Round+1, res.AgreementRatio, res.AggregateConfidence)
}

// strongest returns the agreeing event with the highest confidence, earliest
// first on ties.
func strongest(events []model.AgentEvent) model.AgentEvent {
	sorted := model.CloneEvents(events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return confidenceOf(sorted[i]) > confidenceOf(sorted[j])
	})
	if len(sorted) == 0 {
		return model.AgentEvent{}
	}
	return sorted[0]
}

func confidenceOf(e model.AgentEvent) float64 {
	if e.Confidence == nil {
		return -1
	}
	return *e.Confidence
}

// finish performs the single terminal transition and publishes the frozen
// snapshot.
func (c *Controller) finish(ctx context.Context, status model.DiscussionStatus, result *model.ConsensusResult) {
	if c.snapshot.Load().Status.IsTerminal() {
		return
	}

	end := c.now().UTC().Truncate(eventlog.Resolution)
	if last, ok := c.log.Last(); ok && end.Before(last.Timestamp) {
		end = last.Timestamp
	}

	d := c.build()
	d.Status = status
	d.Consensus = result
	d.EndTime = &end
	c.snapshot.Store(d)

	slog.InfoContext(ctx, "discussion finished",
		"status", string(status),
		"events", len(d.Events),
		"duration_ms", end.Sub(c.start).Milliseconds())

	c.notify(ctx, d)
}

// publish commits the current log as a new active snapshot.
func (c *Controller) publish(ctx context.Context) {
	if c.snapshot.Load().Status.IsTerminal() {
		return
	}
	d := c.build()
	c.snapshot.Store(d)
	c.notify(ctx, d)
}

func (c *Controller) build() *model.Discussion {
	return &model.Discussion{
		ID:           c.id,
		Topic:        c.plan.DiscussionTopic,
		Participants: append([]string(nil), c.plan.RequiredAgents...),
		Status:       model.DiscussionStatusActive,
		Events:       c.log.Snapshot(),
		StartTime:    c.start,
	}
}

func (c *Controller) notify(ctx context.Context, d *model.Discussion) {
	if c.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "snapshot publisher panicked", "panic", r)
		}
	}()
	// The terminal snapshot is still shared after a shutdown cancels ctx.
	if err := c.publisher.Publish(context.WithoutCancel(ctx), d.Clone()); err != nil {
		slog.WarnContext(ctx, "snapshot publish failed", "error", err)
	}
}

func (c *Controller) archive(ctx context.Context) {
	if c.archiver == nil {
		return
	}
	// Shutdown may have cancelled ctx; the archive write still gets its own budget.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	sc := logger.StartSpan(actx, "discussion.archive")
	defer sc.End()

	if err := c.archiver.Archive(sc.Context(), c.Snapshot(), c.plan); err != nil {
		sc.RecordError(err)
		slog.ErrorContext(sc.Context(), "discussion archive failed", "error", err)
	}
}
