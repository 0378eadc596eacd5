package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync/atomic"
	"time"

	"basegraph.app/boardroom/internal/agent"
	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/orchestrator"
	"basegraph.app/boardroom/internal/scheduler"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Controller", func() {
	var (
		ctx       context.Context
		plan      model.Plan
		invoker   *mockInvoker
		archiver  *mockArchiver
		publisher *mockPublisher
		clock     *fakeClock
	)

	newController := func() *orchestrator.Controller {
		return orchestrator.NewController(orchestrator.ControllerConfig{
			ID:        "d-1",
			Plan:      plan,
			Brief:     model.Brief{SessionID: "s-1", UserMessage: "Should we expand?"},
			Invoker:   invoker,
			Archiver:  archiver,
			Publisher: publisher,
			Now:       clock.Now,
		})
	}

	run := func() *orchestrator.Controller {
		c := newController()
		Expect(c.Run(ctx)).To(Succeed())
		Eventually(c.Done()).WithTimeout(5 * time.Second).Should(BeClosed())
		return c
	}

	BeforeEach(func() {
		ctx = context.Background()
		plan = boardPlan()
		invoker = &mockInvoker{}
		archiver = &mockArchiver{}
		publisher = &mockPublisher{}
		clock = newFakeClock()
	})

	Describe("initial state", func() {
		It("starts active with no events", func() {
			c := newController()
			d := c.Snapshot()

			Expect(d.ID).To(Equal("d-1"))
			Expect(d.Topic).To(Equal("Open a Berlin office"))
			Expect(d.Participants).To(Equal(plan.RequiredAgents))
			Expect(d.Status).To(Equal(model.DiscussionStatusActive))
			Expect(d.Events).To(BeEmpty())
			Expect(d.Events).NotTo(BeNil())
			Expect(d.Consensus).To(BeNil())
			Expect(d.EndTime).To(BeNil())
			Expect(d.StartTime).To(Equal(clock.Now()))
		})

		It("refuses to run twice", func() {
			release := make(chan struct{})
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				<-release
				return model.AgentEvent{}, abstain(turn)
			}

			c := newController()
			Expect(c.Run(ctx)).To(Succeed())
			Expect(c.Run(ctx)).To(MatchError(orchestrator.ErrAlreadyRunning))

			close(release)
			Eventually(c.Done()).Should(BeClosed())
		})
	})

	Describe("reaching consensus", func() {
		It("synthesizes once enough agents agree by the last debate round", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				switch {
				case turn.Phase == scheduler.PhaseProposal:
					return reply(turn, model.EventTypeProposal, 0.6), nil
				case turn.Phase == scheduler.PhaseSynthesis:
					e := reply(turn, model.EventTypeSynthesis, 0.9)
					e.Content = "Open Berlin in Q3 with a capped budget"
					return e, nil
				case turn.Round == 1 && (turn.AgentID == "CEO" || turn.AgentID == "CTO"):
					return reply(turn, model.EventTypeAgreement, 0.8), nil
				case turn.Round == 2 && turn.AgentID != "HR":
					return reply(turn, model.EventTypeAgreement, 0.9), nil
				default:
					return reply(turn, model.EventTypeChallenge, 0.7), nil
				}
			}

			d := run().Snapshot()

			Expect(d.Status).To(Equal(model.DiscussionStatusConsensusReached))
			Expect(d.Consensus).NotTo(BeNil())
			Expect(d.Consensus.Decision).To(Equal("Open Berlin in Q3 with a capped budget"))
			Expect(d.Consensus.SupportingAgents).To(ConsistOf("CEO", "CFO", "CTO"))
			Expect(d.Consensus.Confidence).To(BeNumerically("~", 0.9, 1e-9))
			Expect(d.Consensus.Reasoning).To(ContainSubstring("3 of 4"))
			for _, a := range d.Consensus.SupportingAgents {
				Expect(d.Participants).To(ContainElement(a))
			}
			Expect(d.EndTime).NotTo(BeNil())

			Expect(d.Events).To(HaveLen(13))
			last := d.Events[len(d.Events)-1]
			Expect(last.Type).To(Equal(model.EventTypeSynthesis))
			Expect(last.FromAgent).To(Equal("CEO"))

			calls := invoker.calls()
			Expect(calls[len(calls)-1].Phase).To(Equal(scheduler.PhaseSynthesis))
		})

		It("stops after the proposal round when a lone agent proposes", func() {
			plan.RequiredAgents = []string{"CEO"}
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				if turn.Phase == scheduler.PhaseSynthesis {
					return reply(turn, model.EventTypeSynthesis, 0.9), nil
				}
				return reply(turn, model.EventTypeProposal, 0.75), nil
			}

			d := run().Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusConsensusReached))
			Expect(d.Consensus.SupportingAgents).To(Equal([]string{"CEO"}))
			Expect(d.Events).To(HaveLen(2))
		})

		It("records consensus from the strongest agreement when the facilitator abstains", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				switch turn.Phase {
				case scheduler.PhaseProposal:
					return reply(turn, model.EventTypeProposal, 0.6), nil
				case scheduler.PhaseSynthesis:
					return model.AgentEvent{}, abstain(turn)
				}
				conf := map[string]float64{"CEO": 0.7, "CFO": 0.95, "CTO": 0.8, "HR": 0.9}[turn.AgentID]
				return reply(turn, model.EventTypeAgreement, conf), nil
			}

			d := run().Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusConsensusReached))
			Expect(d.Consensus.Decision).To(Equal("CFO says agreement"))
			Expect(d.Consensus.Reasoning).To(ContainSubstring("did not respond"))
			Expect(d.Events).To(HaveLen(8))
			for _, e := range d.Events {
				Expect(e.Type).NotTo(Equal(model.EventTypeSynthesis))
			}
		})

		It("prefers consensus over the timeout when both hold after a round", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				clock.Advance(time.Hour)
				switch turn.Phase {
				case scheduler.PhaseProposal:
					return reply(turn, model.EventTypeProposal, 0.6), nil
				case scheduler.PhaseSynthesis:
					return reply(turn, model.EventTypeSynthesis, 0.9), nil
				}
				return reply(turn, model.EventTypeAgreement, 0.8), nil
			}
			plan.RequiredAgents = []string{"CEO"}

			d := run().Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusConsensusReached))
		})
	})

	Describe("running out of road", func() {
		It("settles as needs_more_input when no round reaches the threshold", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				if turn.Phase == scheduler.PhaseProposal {
					return reply(turn, model.EventTypeProposal, 0.6), nil
				}
				if slices.Index(plan.RequiredAgents, turn.AgentID)%2 == 0 {
					return reply(turn, model.EventTypeChallenge, 0.7), nil
				}
				e := reply(turn, model.EventTypeQuestion, 0)
				e.Confidence = nil
				return e, nil
			}

			d := run().Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusNeedsMoreInput))
			Expect(d.Consensus).To(BeNil())
			Expect(d.EndTime).NotTo(BeNil())
			Expect(d.Events).To(HaveLen(12))

			for _, turn := range invoker.calls() {
				Expect(turn.Phase).NotTo(Equal(scheduler.PhaseSynthesis))
				Expect(turn.Round).To(BeNumerically("<", plan.MaxRounds))
			}
		})

		It("stops at the global timeout after finishing the round", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				if turn.AgentID == "HR" {
					clock.Advance(11 * time.Minute)
				}
				return reply(turn, model.EventTypeProposal, 0.6), nil
			}

			d := run().Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusNeedsMoreInput))
			Expect(d.Events).To(HaveLen(4))
			Expect(invoker.calls()).To(HaveLen(4))
		})

		It("runs every debate round when the timeout is far off", func() {
			plan.TimeoutMinutes = 200_000_000
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				if turn.Phase == scheduler.PhaseProposal {
					return reply(turn, model.EventTypeProposal, 0.6), nil
				}
				return reply(turn, model.EventTypeChallenge, 0.7), nil
			}

			d := run().Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusNeedsMoreInput))

			rounds := map[int]bool{}
			for _, turn := range invoker.calls() {
				rounds[turn.Round] = true
			}
			Expect(rounds).To(HaveLen(plan.MaxRounds))
		})

		It("gives up when every agent abstained in the previous round", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				return model.AgentEvent{}, abstain(turn)
			}

			d := run().Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusNeedsMoreInput))
			Expect(d.Events).To(BeEmpty())
			Expect(invoker.calls()).To(HaveLen(4))
		})
	})

	Describe("abstention", func() {
		It("proceeds without an agent that times out in the proposal round", func() {
			responder := &scriptedResponder{respondFn: func(ctx context.Context, req agent.Request) (agent.Response, error) {
				if req.AgentID == "HR" {
					<-ctx.Done()
					return agent.Response{}, ctx.Err()
				}
				conf := 0.8
				switch req.Expect {
				case scheduler.PhaseProposal:
					return agent.Response{Type: model.EventTypeProposal, Content: req.AgentID + " proposal", Confidence: &conf}, nil
				case scheduler.PhaseSynthesis:
					return agent.Response{Type: model.EventTypeSynthesis, Content: "agreed", Confidence: &conf}, nil
				}
				return agent.Response{Type: model.EventTypeAgreement, Content: req.AgentID + " agrees", Confidence: &conf}, nil
			}}

			c := orchestrator.NewController(orchestrator.ControllerConfig{
				ID:      "d-2",
				Plan:    plan,
				Invoker: agent.NewInvoker(responder, agent.InvokerConfig{Timeout: 50 * time.Millisecond}),
			})
			Expect(c.Run(ctx)).To(Succeed())
			Eventually(c.Done()).WithTimeout(5 * time.Second).Should(BeClosed())

			d := c.Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusConsensusReached))
			Expect(d.Consensus.SupportingAgents).To(ConsistOf("CEO", "CFO", "CTO"))

			var proposals []string
			for _, e := range d.Events {
				Expect(e.FromAgent).NotTo(Equal("HR"))
				if e.Type == model.EventTypeProposal {
					proposals = append(proposals, e.FromAgent)
				}
			}
			Expect(proposals).To(Equal([]string{"CEO", "CFO", "CTO"}))
		})
	})

	Describe("snapshots", func() {
		It("keeps timestamps ordered even when the clock steps backwards", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				clock.Advance(-time.Minute)
				return reply(turn, model.EventTypeChallenge, 0.5), nil
			}

			d := run().Snapshot()
			Expect(d.Events).NotTo(BeEmpty())
			for i := 1; i < len(d.Events); i++ {
				Expect(d.Events[i].Timestamp.After(d.Events[i-1].Timestamp)).To(BeTrue())
			}
			Expect(d.EndTime.Before(d.Events[len(d.Events)-1].Timestamp)).To(BeFalse())
		})

		It("returns identical snapshots once terminal", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				return reply(turn, model.EventTypeChallenge, 0.5), nil
			}

			c := run()
			first, err := json.Marshal(c.Snapshot())
			Expect(err).NotTo(HaveOccurred())
			clock.Advance(time.Hour)
			second, err := json.Marshal(c.Snapshot())
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal(first))
		})

		It("returns identical snapshots while a round is in flight", func() {
			release := make(chan struct{})
			var entered atomic.Int32
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				entered.Add(1)
				<-release
				return reply(turn, model.EventTypeProposal, 0.5), nil
			}

			c := newController()
			Expect(c.Run(ctx)).To(Succeed())
			Eventually(entered.Load).Should(BeEquivalentTo(4))

			Expect(c.Snapshot()).To(Equal(c.Snapshot()))
			Expect(c.Snapshot().Status).To(Equal(model.DiscussionStatusActive))

			close(release)
			Eventually(c.Done()).Should(BeClosed())
		})

		It("hands out copies that callers cannot use to mutate state", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				return reply(turn, model.EventTypeChallenge, 0.5), nil
			}

			c := run()
			d := c.Snapshot()
			d.Events[0].Content = "tampered"
			*d.Events[0].Confidence = 0
			d.Participants[0] = "Mallory"

			fresh := c.Snapshot()
			Expect(fresh.Events[0].Content).NotTo(Equal("tampered"))
			Expect(*fresh.Events[0].Confidence).To(Equal(0.5))
			Expect(fresh.Participants[0]).To(Equal("CEO"))
		})

		It("publishes every committed state and archives the terminal one once", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				return reply(turn, model.EventTypeChallenge, 0.5), nil
			}

			c := run()
			Expect(archiver.count()).To(Equal(1))
			Expect(archiver.archived[0].Status).To(Equal(model.DiscussionStatusNeedsMoreInput))
			Expect(archiver.archived[0].Events).To(HaveLen(12))
			Expect(archiver.archived[0].Events[11].Round).To(Equal(2))

			Expect(publisher.last().Status).To(Equal(model.DiscussionStatusNeedsMoreInput))
			Expect(publisher.last()).To(Equal(c.Snapshot()))
		})
	})

	Describe("failures and cancellation", func() {
		It("ends as needs_more_input when a round panics", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				if turn.AgentID == "CTO" {
					panic("nil map")
				}
				return reply(turn, model.EventTypeProposal, 0.5), nil
			}

			d := run().Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusNeedsMoreInput))
			Expect(d.EndTime).NotTo(BeNil())
			Expect(archiver.count()).To(Equal(1))
		})

		It("keeps running when the snapshot publisher panics", func() {
			publisher.publishFn = func(d *model.Discussion) { panic("cache down") }
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				return reply(turn, model.EventTypeChallenge, 0.5), nil
			}

			d := run().Snapshot()
			Expect(d.Events).To(HaveLen(12))
		})

		It("finishes the in-flight round and stops before the next one", func() {
			started := make(chan struct{}, 4)
			release := make(chan struct{})
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				started <- struct{}{}
				<-release
				return reply(turn, model.EventTypeProposal, 0.5), nil
			}

			c := newController()
			Expect(c.Run(ctx)).To(Succeed())
			for range 4 {
				Eventually(started).Should(Receive())
			}

			c.Cancel()
			close(release)
			Eventually(c.Done()).Should(BeClosed())

			d := c.Snapshot()
			Expect(d.Status).To(Equal(model.DiscussionStatusNeedsMoreInput))
			Expect(d.Events).To(HaveLen(4))
			Expect(invoker.calls()).To(HaveLen(4))
		})

		It("respects the round parallelism cap", func() {
			var inFlight, peak atomic.Int32
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				inFlight.Add(-1)
				return reply(turn, model.EventTypeChallenge, 0.5), nil
			}

			c := orchestrator.NewController(orchestrator.ControllerConfig{
				ID:          "d-3",
				Plan:        plan,
				Invoker:     invoker,
				MaxParallel: 2,
			})
			Expect(c.Run(ctx)).To(Succeed())
			Eventually(c.Done()).WithTimeout(5 * time.Second).Should(BeClosed())

			Expect(peak.Load()).To(BeNumerically("<=", 2))
			Expect(c.Snapshot().Events).To(HaveLen(12))
		})

		It("keeps events in turn order regardless of completion order", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				delay := map[string]time.Duration{"CEO": 30, "CFO": 20, "CTO": 10, "HR": 0}[turn.AgentID]
				time.Sleep(delay * time.Millisecond)
				return reply(turn, model.EventTypeChallenge, 0.5), nil
			}
			plan.MaxRounds = 1

			d := run().Snapshot()
			var order []string
			for _, e := range d.Events {
				order = append(order, e.FromAgent)
			}
			Expect(order).To(Equal([]string{"CEO", "CFO", "CTO", "HR"}))
		})

		It("wraps non-abstention errors without failing the round", func() {
			invoker.invokeFn = func(ctx context.Context, turn scheduler.Turn, req agent.Request) (model.AgentEvent, error) {
				if turn.AgentID == "CFO" {
					return model.AgentEvent{}, errors.New("unexpected")
				}
				return reply(turn, model.EventTypeProposal, 0.5), nil
			}
			plan.MaxRounds = 1

			d := run().Snapshot()
			Expect(d.Events).To(HaveLen(3))
		})
	})
})
