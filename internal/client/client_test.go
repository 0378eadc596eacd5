package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/boardroom/internal/client"
	"basegraph.app/boardroom/internal/http/dto"
	"basegraph.app/boardroom/internal/model"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		handler  http.HandlerFunc
		c        *client.Client
		lastBody dto.CollaborationRequest
		lastPath string
	)

	BeforeEach(func() {
		handler = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastPath = r.URL.Path
			lastBody = dto.CollaborationRequest{}
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
			handler(w, r)
		}))
		DeferCleanup(server.Close)
		c = client.New(server.URL + "/")
	})

	respond := func(status int, resp dto.CollaborationResponse) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(resp)
		}
	}

	It("starts a discussion with the action body", func() {
		handler = respond(http.StatusOK, dto.Success(&model.Discussion{ID: "1", Status: model.DiscussionStatusActive}))

		d, err := c.Start(context.Background(), client.StartRequest{
			SessionID: "s1",
			Plan:      model.Plan{DiscussionTopic: "Pricing", RequiredAgents: []string{"CEO"}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(d.ID).To(Equal("1"))
		Expect(lastPath).To(Equal("/api/collaboration"))
		Expect(lastBody.Action).To(Equal(dto.ActionStartCollaboration))
		Expect(lastBody.SessionID).To(Equal("s1"))
		Expect(lastBody.Plan.DiscussionTopic).To(Equal("Pricing"))
	})

	It("gets a discussion with the action body", func() {
		handler = respond(http.StatusOK, dto.Success(&model.Discussion{ID: "7"}))

		_, err := c.Get(context.Background(), "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(lastBody.Action).To(Equal(dto.ActionGetDiscussion))
		Expect(lastBody.DiscussionID).To(Equal("7"))
	})

	It("posts cancellation to the discussion route", func() {
		handler = respond(http.StatusAccepted, dto.Success(&model.Discussion{ID: "7"}))

		_, err := c.Cancel(context.Background(), "7")
		Expect(err).NotTo(HaveOccurred())
		Expect(lastPath).To(Equal("/api/v1/discussions/7/cancel"))
	})

	It("surfaces server errors", func() {
		handler = respond(http.StatusNotFound, dto.Failure("discussion not found"))

		_, err := c.Get(context.Background(), "404")
		Expect(err).To(MatchError("boardroom api: 404: discussion not found"))
		Expect(client.IsNotFound(err)).To(BeTrue())
	})

	It("rejects unreadable responses", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>bad gateway</html>"))
		}

		_, err := c.Get(context.Background(), "1")
		Expect(err).To(MatchError(ContainSubstring("unreadable response")))
	})
})

var _ = Describe("LoadPlanFile", func() {
	write := func(content string) string {
		path := filepath.Join(GinkgoT().TempDir(), "plan.yaml")
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("reads a plan document", func() {
		req, err := client.LoadPlanFile(write(`
sessionId: offsite
userMessage: Should we?
plan:
  discussionTopic: Open a Berlin office
  requiredAgents: [CEO, CFO, CTO, HR]
  maxRounds: 3
  consensusThreshold: 0.7
  timeoutMinutes: 5
  facilitator: CEO
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(req.SessionID).To(Equal("offsite"))
		Expect(req.UserMessage).To(Equal("Should we?"))
		Expect(req.Plan.RequiredAgents).To(HaveLen(4))
		Expect(req.Plan.ConsensusThreshold).To(Equal(0.7))
	})

	It("rejects invalid plans before sending them", func() {
		_, err := client.LoadPlanFile(write(`
plan:
  discussionTopic: Nothing
  requiredAgents: []
  maxRounds: 3
  consensusThreshold: 0.7
  timeoutMinutes: 5
  facilitator: CEO
`))
		var verr *model.ValidationError
		Expect(errors.As(err, &verr)).To(BeTrue())
	})

	It("reports malformed YAML", func() {
		_, err := client.LoadPlanFile(write("plan: [unclosed"))
		Expect(err).To(MatchError(ContainSubstring("parsing plan file")))
	})
})
