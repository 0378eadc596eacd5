// Package scheduler decides which agents act in each round of a discussion
// and what kind of event each one is expected to produce.
package scheduler

import (
	"basegraph.app/boardroom/internal/model"
)

// Phase is the role of a turn within the discussion.
type Phase string

const (
	PhaseProposal  Phase = "proposal"
	PhaseDebate    Phase = "debate"
	PhaseSynthesis Phase = "synthesis"
)

// Turn is one scheduled agent invocation.
type Turn struct {
	AgentID string
	Round   int
	Phase   Phase
}

// Accepts reports whether an agent may declare t for this turn. Proposal and
// synthesis turns have a fixed type; debate turns accept the agent's own
// classification as long as it is a debate type.
func (t Turn) Accepts(et model.EventType) bool {
	switch t.Phase {
	case PhaseProposal:
		return et == model.EventTypeProposal
	case PhaseSynthesis:
		return et == model.EventTypeSynthesis
	case PhaseDebate:
		return et.IsDebate()
	}
	return false
}

// Expected returns the event type the turn must produce, or "" when the agent
// chooses.
func (t Turn) Expected() model.EventType {
	switch t.Phase {
	case PhaseProposal:
		return model.EventTypeProposal
	case PhaseSynthesis:
		return model.EventTypeSynthesis
	}
	return ""
}

type Scheduler struct {
	plan model.Plan
}

func New(plan model.Plan) *Scheduler {
	return &Scheduler{plan: plan}
}

// PhaseFor returns the phase of the given round.
func (s *Scheduler) PhaseFor(round int) Phase {
	if round == 0 {
		return PhaseProposal
	}
	return PhaseDebate
}

// Turns returns the turns for round, in requiredAgents order.
//
// Round 0 schedules every required agent. Later rounds re-invoke only agents
// that produced an event in the previous round, so an agent that abstained
// (timed out or errored) drops out of the debate. Rounds at or beyond
// maxRounds schedule nobody.
func (s *Scheduler) Turns(round int, events []model.AgentEvent) []Turn {
	if round < 0 || round >= s.plan.MaxRounds {
		return nil
	}

	phase := s.PhaseFor(round)
	if phase == PhaseProposal {
		turns := make([]Turn, 0, len(s.plan.RequiredAgents))
		for _, agent := range s.plan.RequiredAgents {
			turns = append(turns, Turn{AgentID: agent, Round: round, Phase: phase})
		}
		return turns
	}

	spoke := make(map[string]bool)
	for _, e := range events {
		if e.Round == round-1 && e.Type != model.EventTypeSynthesis {
			spoke[e.FromAgent] = true
		}
	}

	var turns []Turn
	for _, agent := range s.plan.RequiredAgents {
		if spoke[agent] {
			turns = append(turns, Turn{AgentID: agent, Round: round, Phase: phase})
		}
	}
	return turns
}

// SynthesisTurn asks the facilitator to summarize the collective position
// after consensus was detected in round.
func (s *Scheduler) SynthesisTurn(round int) Turn {
	return Turn{AgentID: s.plan.Facilitator, Round: round, Phase: PhaseSynthesis}
}
