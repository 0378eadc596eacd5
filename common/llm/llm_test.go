package llm_test

import (
	"strings"

	"basegraph.app/boardroom/common/llm"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SanitizeName", func() {
	DescribeTable("sanitizes agent identifiers for the OpenAI name parameter",
		func(input, expected string) {
			Expect(llm.SanitizeName(input)).To(Equal(expected))
		},
		Entry("valid name unchanged", "CEO", "CEO"),
		Entry("dots replaced with underscore", "head.of.ops", "head_of_ops"),
		Entry("spaces replaced", "chief people officer", "chief_people_officer"),
		Entry("hyphens preserved", "cto-2", "cto-2"),
		Entry("long name truncated to 64 chars", strings.Repeat("a", 100), strings.Repeat("a", 64)),
		Entry("empty string unchanged", "", ""),
	)
})

var _ = Describe("New", func() {
	It("requires an API key", func() {
		client, err := llm.New(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(err).To(MatchError(ContainSubstring("API key is required")))
		Expect(client).To(BeNil())
	})

	It("rejects unknown providers", func() {
		_, err := llm.New(llm.Config{Provider: "carrier-pigeon", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	It("defaults the model", func() {
		client, err := llm.New(llm.Config{APIKey: "k"})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Model()).To(Equal("gpt-4o-mini"))
	})
})

var _ = Describe("Decode", func() {
	It("unmarshals structured output", func() {
		var out struct {
			Type string `json:"type"`
		}
		Expect(llm.Decode(`{"type":"agreement"}`, &out)).To(Succeed())
		Expect(out.Type).To(Equal("agreement"))
	})

	It("wraps malformed output", func() {
		var out map[string]any
		Expect(llm.Decode(`not json`, &out)).To(MatchError(ContainSubstring("unmarshal response")))
	})
})
