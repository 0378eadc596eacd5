package eventlog_test

import (
	"sync"
	"time"

	"basegraph.app/boardroom/internal/eventlog"
	"basegraph.app/boardroom/internal/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Log", func() {
	var (
		now time.Time
		log *eventlog.Log
	)

	BeforeEach(func() {
		now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		log = eventlog.New(func() time.Time { return now })
	})

	event := func(agent string) model.AgentEvent {
		c := 0.5
		return model.AgentEvent{Type: model.EventTypeProposal, FromAgent: agent, Content: "idea", Confidence: &c}
	}

	It("returns the position and the stored copy", func() {
		pos, stored := log.Append(event("CEO"))
		Expect(pos).To(Equal(0))
		Expect(stored.ID).NotTo(BeEmpty())
		Expect(stored.Timestamp).To(Equal(now))

		pos, _ = log.Append(event("CFO"))
		Expect(pos).To(Equal(1))
		Expect(log.Len()).To(Equal(2))
	})

	It("keeps a caller-provided id", func() {
		e := event("CEO")
		e.ID = "fixed"
		_, stored := log.Append(e)
		Expect(stored.ID).To(Equal("fixed"))
	})

	It("truncates timestamps to milliseconds in UTC", func() {
		now = time.Date(2026, 3, 2, 10, 0, 0, 123456789, time.FixedZone("CET", 3600))
		_, stored := log.Append(event("CEO"))
		Expect(stored.Timestamp.Location()).To(Equal(time.UTC))
		Expect(stored.Timestamp.Nanosecond()).To(Equal(123000000))
	})

	It("clamps timestamps so they strictly increase", func() {
		_, first := log.Append(event("CEO"))
		_, second := log.Append(event("CFO"))
		now = now.Add(-time.Hour)
		_, third := log.Append(event("CTO"))

		Expect(second.Timestamp).To(Equal(first.Timestamp.Add(time.Millisecond)))
		Expect(third.Timestamp).To(Equal(second.Timestamp.Add(time.Millisecond)))
	})

	It("isolates stored events from the caller", func() {
		e := event("CEO")
		log.Append(e)
		*e.Confidence = 0.99
		e.Content = "changed"

		snap := log.Snapshot()
		Expect(snap[0].Content).To(Equal("idea"))
		Expect(*snap[0].Confidence).To(Equal(0.5))

		*snap[0].Confidence = 0
		Expect(*log.Snapshot()[0].Confidence).To(Equal(0.5))
	})

	It("returns an empty, non-nil snapshot when nothing was appended", func() {
		snap := log.Snapshot()
		Expect(snap).NotTo(BeNil())
		Expect(snap).To(BeEmpty())

		_, ok := log.Last()
		Expect(ok).To(BeFalse())
	})

	It("reports the last event", func() {
		log.Append(event("CEO"))
		log.Append(event("CFO"))
		last, ok := log.Last()
		Expect(ok).To(BeTrue())
		Expect(last.FromAgent).To(Equal("CFO"))
	})

	It("serves concurrent readers while appending", func() {
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				for range 50 {
					snap := log.Snapshot()
					for i := 1; i < len(snap); i++ {
						Expect(snap[i].Timestamp.After(snap[i-1].Timestamp)).To(BeTrue())
					}
				}
			}()
		}
		for range 50 {
			log.Append(event("CEO"))
		}
		wg.Wait()
		Expect(log.Len()).To(Equal(50))
	})
})
