package queue_test

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/queue"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func terminalDiscussion() (*model.Discussion, model.Plan) {
	conf := 0.9
	end := time.Date(2026, 3, 2, 9, 3, 0, 0, time.UTC)
	plan := model.Plan{
		DiscussionTopic:    "Adopt a four-day week",
		RequiredAgents:     []string{"CEO", "HR"},
		MaxRounds:          2,
		ConsensusThreshold: 1,
		TimeoutMinutes:     5,
		Facilitator:        "HR",
	}
	return &model.Discussion{
		ID:           "42",
		Topic:        plan.DiscussionTopic,
		Participants: plan.RequiredAgents,
		Status:       model.DiscussionStatusNeedsMoreInput,
		Events: []model.AgentEvent{
			{ID: "1", Type: model.EventTypeProposal, FromAgent: "CEO", Content: "Pilot it", Confidence: &conf, Round: 0},
			{ID: "2", Type: model.EventTypeChallenge, FromAgent: "HR", Content: "Coverage gaps", Confidence: &conf, Round: 1},
		},
		StartTime: end.Add(-3 * time.Minute),
		EndTime:   &end,
	}, plan
}

func streamMessage(d *model.Discussion, plan model.Plan, extra map[string]any) redis.XMessage {
	payload, err := queue.NewArchivePayload(d, plan).Encode()
	Expect(err).NotTo(HaveOccurred())

	values := map[string]any{
		"task_type":     "archive_discussion",
		"discussion_id": d.ID,
		"payload":       payload,
	}
	for k, v := range extra {
		values[k] = v
	}
	return redis.XMessage{ID: "1-0", Values: values}
}

var _ = Describe("ParseMessage", func() {
	It("restores the discussion including event rounds", func() {
		d, plan := terminalDiscussion()

		msg, err := queue.ParseMessage(streamMessage(d, plan, map[string]any{"attempt": "2", "trace_id": "abc"}))
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ID).To(Equal("1-0"))
		Expect(msg.TaskType).To(Equal(queue.TaskTypeArchiveDiscussion))
		Expect(msg.DiscussionID).To(Equal("42"))
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.TraceID).To(Equal("abc"))
		Expect(msg.Payload.Plan).To(Equal(plan))

		got := msg.Payload.Discussion
		Expect(got.Status).To(Equal(model.DiscussionStatusNeedsMoreInput))
		Expect(got.Events).To(HaveLen(2))
		Expect(got.Events[1].Round).To(Equal(1))
		Expect(got.EndTime.Equal(*d.EndTime)).To(BeTrue())
	})

	It("defaults the attempt to one", func() {
		d, plan := terminalDiscussion()
		msg, err := queue.ParseMessage(streamMessage(d, plan, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
	})

	DescribeTable("rejects malformed messages",
		func(mutate func(values map[string]any), problem string) {
			d, plan := terminalDiscussion()
			raw := streamMessage(d, plan, nil)
			mutate(raw.Values)

			_, err := queue.ParseMessage(raw)
			Expect(err).To(MatchError(ContainSubstring(problem)))
		},
		Entry("unknown task type", func(v map[string]any) { v["task_type"] = "repo_sync" }, "unknown task_type"),
		Entry("missing discussion id", func(v map[string]any) { delete(v, "discussion_id") }, "missing discussion_id"),
		Entry("missing payload", func(v map[string]any) { delete(v, "payload") }, "missing payload"),
		Entry("garbled payload", func(v map[string]any) { v["payload"] = "{" }, "decoding archive payload"),
		Entry("mismatched id", func(v map[string]any) { v["discussion_id"] = "43" }, "does not match"),
		Entry("bad attempt", func(v map[string]any) { v["attempt"] = "first" }, "parsing attempt"),
	)
})

var _ = Describe("StreamArchiver", func() {
	It("enqueues the discussion with its plan", func() {
		producer := &mockProducer{}
		d, plan := terminalDiscussion()

		Expect(queue.NewStreamArchiver(producer).Archive(context.Background(), d, plan)).To(Succeed())

		Expect(producer.messages).To(HaveLen(1))
		msg := producer.messages[0]
		Expect(msg.DiscussionID).To(Equal("42"))
		Expect(msg.Payload.EventRounds).To(Equal([]int{0, 1}))
		Expect(msg.TraceID).To(BeNil())
	})
})

type mockProducer struct {
	messages []queue.ArchiveMessage
}

func (m *mockProducer) Enqueue(ctx context.Context, msg queue.ArchiveMessage) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockProducer) Close() error {
	return nil
}
