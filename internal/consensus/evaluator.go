// Package consensus decides whether a discussion round has converged.
//
// Evaluation is a pure function of the event history: it never mutates its
// input and holds no state between calls.
package consensus

import (
	"basegraph.app/boardroom/internal/model"
)

type Result struct {
	Round int

	// Contributors are agents whose latest event in the round is not a
	// question. Questions abstain from the tally.
	Contributors []string
	Agreeing     []string

	// AgreeingEvents holds the latest event of each agreeing agent, in log order.
	AgreeingEvents []model.AgentEvent

	AgreementRatio      float64
	AggregateConfidence float64

	// Ready is set when AgreementRatio reaches the plan threshold. Confidence
	// is reported only and does not gate synthesis.
	Ready bool
}

// Evaluate tallies the given round of events against plan.ConsensusThreshold.
func Evaluate(events []model.AgentEvent, round int, plan model.Plan) Result {
	res := Result{Round: round}

	latest := make(map[string]model.AgentEvent)
	var order []string
	challenged := false
	for _, e := range events {
		if e.Type == model.EventTypeChallenge {
			challenged = true
		}
		if e.Round != round || e.Type == model.EventTypeSynthesis {
			continue
		}
		if _, ok := latest[e.FromAgent]; !ok {
			order = append(order, e.FromAgent)
		}
		latest[e.FromAgent] = e
	}

	for _, agent := range order {
		if latest[agent].Type != model.EventTypeQuestion {
			res.Contributors = append(res.Contributors, agent)
		}
	}

	for _, agent := range res.Contributors {
		e := latest[agent]
		agrees := e.Type == model.EventTypeAgreement
		if !agrees && e.Type == model.EventTypeProposal && len(res.Contributors) == 1 && !challenged {
			agrees = true
		}
		if agrees {
			res.Agreeing = append(res.Agreeing, agent)
			res.AgreeingEvents = append(res.AgreeingEvents, e)
		}
	}

	if len(res.Contributors) == 0 {
		return res
	}

	res.AgreementRatio = float64(len(res.Agreeing)) / float64(len(res.Contributors))
	res.AggregateConfidence = meanConfidence(res.AgreeingEvents)
	res.Ready = res.AgreementRatio >= plan.ConsensusThreshold
	return res
}

// meanConfidence averages the confidence of events that declare one.
func meanConfidence(events []model.AgentEvent) float64 {
	var sum float64
	var n int
	for _, e := range events {
		if e.Confidence == nil {
			continue
		}
		sum += *e.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp01(sum / float64(n))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
