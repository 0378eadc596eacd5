package queue

import (
	"encoding/json"
	"fmt"

	"basegraph.app/boardroom/internal/model"
)

type TaskType string

const (
	TaskTypeArchiveDiscussion TaskType = "archive_discussion"
)

// ArchivePayload is the terminal discussion handed from a server to the
// archive worker. Event rounds are not part of the discussion JSON, so they
// travel alongside it.
type ArchivePayload struct {
	Discussion  *model.Discussion `json:"discussion"`
	Plan        model.Plan        `json:"plan"`
	EventRounds []int             `json:"eventRounds"`
}

func NewArchivePayload(d *model.Discussion, plan model.Plan) ArchivePayload {
	rounds := make([]int, len(d.Events))
	for i, e := range d.Events {
		rounds[i] = e.Round
	}
	return ArchivePayload{Discussion: d, Plan: plan, EventRounds: rounds}
}

func (p ArchivePayload) Encode() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding archive payload: %w", err)
	}
	return string(raw), nil
}

func DecodeArchivePayload(raw string) (ArchivePayload, error) {
	var p ArchivePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return ArchivePayload{}, fmt.Errorf("decoding archive payload: %w", err)
	}
	if p.Discussion == nil {
		return ArchivePayload{}, fmt.Errorf("archive payload has no discussion")
	}
	if len(p.EventRounds) != len(p.Discussion.Events) {
		return ArchivePayload{}, fmt.Errorf("archive payload has %d rounds for %d events", len(p.EventRounds), len(p.Discussion.Events))
	}
	for i := range p.Discussion.Events {
		p.Discussion.Events[i].Round = p.EventRounds[i]
	}
	if p.Discussion.Events == nil {
		p.Discussion.Events = []model.AgentEvent{}
	}
	return p, nil
}
