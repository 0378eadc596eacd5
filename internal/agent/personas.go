package agent

import (
	"fmt"
	"strings"
)

type persona struct {
	title string
	focus string
}

var personas = map[string]persona{
	"CEO": {
		title: "Chief Executive Officer",
		focus: "company strategy, market position, long-term vision, and whether the decision moves the business forward",
	},
	"CFO": {
		title: "Chief Financial Officer",
		focus: "cost, return on investment, cash flow, budget risk, and financial exposure",
	},
	"CTO": {
		title: "Chief Technology Officer",
		focus: "technical feasibility, architecture, delivery risk, and engineering capacity",
	},
	"HR": {
		title: "Head of People",
		focus: "hiring, team morale, workload, culture, and organizational impact",
	},
}

func systemPrompt(agentID string) string {
	p, ok := personas[strings.ToUpper(agentID)]
	if !ok {
		return fmt.Sprintf(`You are %s, a member of an executive board discussing a decision with other board members.
Argue from your own area of responsibility. Be concise and concrete.`, agentID)
	}
	return fmt.Sprintf(`You are the %s (%s) on an executive board discussing a decision with other board members.
You focus on %s.
Be concise and concrete. Disagree when your area of responsibility is at risk.`, p.title, agentID, p.focus)
}
