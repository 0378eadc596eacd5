package model

import (
	"encoding/json"
	"time"
)

// TimeLayout is the wire format for every timestamp: UTC with exactly three
// fractional digits.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// DiscussionStatus is the lifecycle state of a discussion. Only active is
// non-terminal.
type DiscussionStatus string

const (
	DiscussionStatusActive           DiscussionStatus = "active"
	DiscussionStatusConsensusReached DiscussionStatus = "consensus_reached"
	DiscussionStatusNeedsMoreInput   DiscussionStatus = "needs_more_input"
)

func (s DiscussionStatus) IsTerminal() bool {
	return s == DiscussionStatusConsensusReached || s == DiscussionStatusNeedsMoreInput
}

// EventType is the self-declared kind of an agent utterance.
type EventType string

const (
	EventTypeProposal  EventType = "proposal"
	EventTypeQuestion  EventType = "question"
	EventTypeChallenge EventType = "challenge"
	EventTypeAgreement EventType = "agreement"
	EventTypeSynthesis EventType = "synthesis"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventTypeProposal, EventTypeQuestion, EventTypeChallenge, EventTypeAgreement, EventTypeSynthesis:
		return true
	}
	return false
}

// IsDebate reports whether t is a type an agent may declare in a debate round.
func (t EventType) IsDebate() bool {
	return t == EventTypeQuestion || t == EventTypeChallenge || t == EventTypeAgreement
}

type AgentEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	FromAgent  string    `json:"fromAgent"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence *float64  `json:"confidence,omitempty"`

	// Round is the scheduling round that produced the event. Synthesis events
	// carry the round after which consensus was detected.
	Round int `json:"-"`
}

func (e AgentEvent) MarshalJSON() ([]byte, error) {
	type wire AgentEvent
	return json.Marshal(struct {
		wire
		Timestamp string `json:"timestamp"`
	}{wire: wire(e), Timestamp: FormatTime(e.Timestamp)})
}

type ConsensusResult struct {
	Decision         string   `json:"decision"`
	Confidence       float64  `json:"confidence"`
	SupportingAgents []string `json:"supportingAgents"`
	Reasoning        string   `json:"reasoning"`
}

// Discussion is one multi-agent debate. Values handed out by the orchestrator
// are snapshots; mutating them never affects the running discussion.
type Discussion struct {
	ID           string           `json:"id"`
	Topic        string           `json:"topic"`
	Participants []string         `json:"participants"`
	Status       DiscussionStatus `json:"status"`
	Events       []AgentEvent     `json:"events"`
	Consensus    *ConsensusResult `json:"consensus,omitempty"`
	StartTime    time.Time        `json:"startTime"`
	EndTime      *time.Time       `json:"endTime,omitempty"`
}

func (d Discussion) MarshalJSON() ([]byte, error) {
	type wire Discussion
	var end *string
	if d.EndTime != nil {
		v := FormatTime(*d.EndTime)
		end = &v
	}
	return json.Marshal(struct {
		wire
		StartTime string  `json:"startTime"`
		EndTime   *string `json:"endTime,omitempty"`
	}{wire: wire(d), StartTime: FormatTime(d.StartTime), EndTime: end})
}

// Clone returns a deep copy of d.
func (d *Discussion) Clone() *Discussion {
	if d == nil {
		return nil
	}
	out := *d
	out.Participants = append([]string(nil), d.Participants...)
	out.Events = CloneEvents(d.Events)
	if d.Consensus != nil {
		c := *d.Consensus
		c.SupportingAgents = append([]string(nil), d.Consensus.SupportingAgents...)
		out.Consensus = &c
	}
	if d.EndTime != nil {
		t := *d.EndTime
		out.EndTime = &t
	}
	return &out
}

// CloneEvents deep-copies events, including confidence pointers. The result is
// never nil so snapshots always serialize "events" as an array.
func CloneEvents(events []AgentEvent) []AgentEvent {
	out := make([]AgentEvent, len(events))
	for i, e := range events {
		out[i] = e
		if e.Confidence != nil {
			c := *e.Confidence
			out[i].Confidence = &c
		}
	}
	return out
}

// Brief carries the request fields that accompany a plan. They are opaque to
// the orchestrator and only forwarded to agents.
type Brief struct {
	SessionID   string
	Context     string
	UserMessage string
}
