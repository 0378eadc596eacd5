package client

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"basegraph.app/boardroom/internal/model"
)

// PlanFile is the YAML document accepted by `boardroom start`.
//
//	sessionId: q3-offsite
//	context: Revenue is flat quarter over quarter.
//	userMessage: Should we open a Berlin office?
//	plan:
//	  discussionTopic: Open a Berlin office
//	  requiredAgents: [CEO, CFO, CTO, HR]
//	  maxRounds: 3
//	  consensusThreshold: 0.7
//	  timeoutMinutes: 5
//	  facilitator: CEO
type PlanFile struct {
	SessionID   string     `yaml:"sessionId"`
	Context     string     `yaml:"context"`
	UserMessage string     `yaml:"userMessage"`
	Plan        model.Plan `yaml:"plan"`
}

func LoadPlanFile(path string) (StartRequest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return StartRequest{}, fmt.Errorf("reading plan file: %w", err)
	}

	var f PlanFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return StartRequest{}, fmt.Errorf("parsing plan file %s: %w", path, err)
	}

	// Catch mistakes locally; the server validates again.
	if err := f.Plan.Validate(); err != nil {
		return StartRequest{}, err
	}

	return StartRequest{
		SessionID:   f.SessionID,
		Plan:        f.Plan,
		Context:     f.Context,
		UserMessage: f.UserMessage,
	}, nil
}
