package agent_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/boardroom/internal/agent"
	"basegraph.app/boardroom/internal/model"
)

var _ = Describe("BriefingBook", func() {
	book := agent.NewBriefingBook([]agent.BriefingEntry{
		{Title: "Company values", Tags: []string{"*"}, Body: "Customers first."},
		{Title: "Hiring freeze", Tags: []string{"headcount"}, Body: "No new roles until Q3."},
		{Title: "Cloud spend", Tags: []string{"infrastructure", "budget"}, Body: "Spend is capped at 2M."},
	}, 0)

	It("selects entries by tag and title", func() {
		out, err := book.Context(context.Background(), "Should we increase headcount?", model.Brief{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("## Company values"))
		Expect(out).To(ContainSubstring("## Hiring freeze"))
		Expect(out).NotTo(ContainSubstring("Cloud spend"))
	})

	It("matches words in the user's message", func() {
		out, err := book.Context(context.Background(), "Q4 plan", model.Brief{UserMessage: "what about the cloud bill"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Spend is capped"))
	})

	It("stops at the size limit", func() {
		small := agent.NewBriefingBook([]agent.BriefingEntry{
			{Title: "A", Tags: []string{"*"}, Body: "short"},
			{Title: "B", Tags: []string{"*"}, Body: "this body does not fit in the remaining space"},
		}, 20)
		out, err := small.Context(context.Background(), "anything", model.Brief{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("## A\nshort"))
	})

	It("loads a YAML file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "briefing.yaml")
		Expect(os.WriteFile(path, []byte(`
entries:
  - title: Pricing policy
    tags: [pricing]
    body: Discounts above 20% need CFO sign-off.
`), 0o600)).To(Succeed())

		loaded, err := agent.LoadBriefingBook(path, 0)
		Expect(err).NotTo(HaveOccurred())
		out, err := loaded.Context(context.Background(), "New pricing tiers", model.Brief{})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("CFO sign-off"))
	})

	It("reports unreadable files", func() {
		_, err := agent.LoadBriefingBook(filepath.Join(GinkgoT().TempDir(), "missing.yaml"), 0)
		Expect(err).To(MatchError(ContainSubstring("reading briefing book")))
	})
})
