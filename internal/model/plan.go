package model

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// MaxTimeoutMinutes caps a discussion's global timeout at one week.
const MaxTimeoutMinutes = 7 * 24 * 60

type Plan struct {
	DiscussionTopic    string   `json:"discussionTopic" yaml:"discussionTopic"`
	RequiredAgents     []string `json:"requiredAgents" yaml:"requiredAgents"`
	MaxRounds          int      `json:"maxRounds" yaml:"maxRounds"`
	ConsensusThreshold float64  `json:"consensusThreshold" yaml:"consensusThreshold"`
	TimeoutMinutes     int      `json:"timeoutMinutes" yaml:"timeoutMinutes"`
	Facilitator        string   `json:"facilitator" yaml:"facilitator"`
}

// ValidationError lists every problem found in a plan.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid plan: " + strings.Join(e.Problems, "; ")
}

// Timeout is the global discussion budget. Values outside the validated range
// are clamped to it.
func (p Plan) Timeout() time.Duration {
	minutes := min(max(p.TimeoutMinutes, 0), MaxTimeoutMinutes)
	return time.Duration(minutes) * time.Minute
}

// Validate checks the plan before any discussion state is created.
func (p Plan) Validate() error {
	var problems []string

	if len(p.RequiredAgents) == 0 {
		problems = append(problems, "requiredAgents must not be empty")
	}
	seen := make(map[string]struct{}, len(p.RequiredAgents))
	for _, agent := range p.RequiredAgents {
		if strings.TrimSpace(agent) == "" {
			problems = append(problems, "requiredAgents must not contain empty identifiers")
			continue
		}
		if _, dup := seen[agent]; dup {
			problems = append(problems, fmt.Sprintf("requiredAgents contains duplicate %q", agent))
			continue
		}
		seen[agent] = struct{}{}
	}
	if p.MaxRounds < 1 {
		problems = append(problems, "maxRounds must be at least 1")
	}
	// Written as a negated range check so NaN is rejected too.
	if !(p.ConsensusThreshold > 0 && p.ConsensusThreshold <= 1) {
		problems = append(problems, "consensusThreshold must be in (0, 1]")
	}
	if p.TimeoutMinutes <= 0 || p.TimeoutMinutes > MaxTimeoutMinutes {
		problems = append(problems, fmt.Sprintf("timeoutMinutes must be in [1, %d]", MaxTimeoutMinutes))
	}
	if p.Facilitator == "" {
		problems = append(problems, "facilitator is required")
	} else if !slices.Contains(p.RequiredAgents, p.Facilitator) {
		problems = append(problems, fmt.Sprintf("facilitator %q is not one of requiredAgents", p.Facilitator))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
