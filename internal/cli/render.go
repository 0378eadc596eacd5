package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"basegraph.app/boardroom/internal/model"
)

// renderer prints each event once, so repeated snapshots of the same
// discussion only show what is new.
type renderer struct {
	out     io.Writer
	printed int
	status  model.DiscussionStatus
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) update(d *model.Discussion) {
	if r.printed == 0 && r.status == "" {
		fmt.Fprintf(r.out, "Discussion %s: %s\n", d.ID, d.Topic)
		fmt.Fprintf(r.out, "Participants: %s\n\n", strings.Join(d.Participants, ", "))
	}

	for _, e := range d.Events[min(r.printed, len(d.Events)):] {
		fmt.Fprintf(r.out, "[%s] %s (%s", e.Timestamp.Format("15:04:05"), e.FromAgent, e.Type)
		if e.Confidence != nil {
			fmt.Fprintf(r.out, ", %.2f", *e.Confidence)
		}
		fmt.Fprintf(r.out, ")\n  %s\n", e.Content)
	}
	r.printed = max(r.printed, len(d.Events))

	if d.Status != r.status {
		r.status = d.Status
		if d.Status.IsTerminal() {
			r.summary(d)
		}
	}
}

func (r *renderer) summary(d *model.Discussion) {
	fmt.Fprintf(r.out, "\nStatus: %s\n", d.Status)
	if d.EndTime != nil {
		fmt.Fprintf(r.out, "Duration: %s\n", d.EndTime.Sub(d.StartTime).Round(time.Millisecond))
	}
	if c := d.Consensus; c != nil {
		fmt.Fprintf(r.out, "Decision: %s\n", c.Decision)
		fmt.Fprintf(r.out, "Confidence: %.2f\n", c.Confidence)
		fmt.Fprintf(r.out, "Supporting: %s\n", strings.Join(c.SupportingAgents, ", "))
		fmt.Fprintf(r.out, "Reasoning: %s\n", c.Reasoning)
	}
}
