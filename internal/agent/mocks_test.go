package agent_test

import (
	"context"
	"sync"

	"basegraph.app/boardroom/common/llm"
	"basegraph.app/boardroom/internal/agent"
	"basegraph.app/boardroom/internal/model"
)

type mockResponder struct {
	respondFn func(ctx context.Context, req agent.Request) (agent.Response, error)

	mu       sync.Mutex
	requests []agent.Request
}

func (m *mockResponder) Respond(ctx context.Context, req agent.Request) (agent.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.respondFn(ctx, req)
}

type mockContextProvider struct {
	contextFn func(ctx context.Context, topic string, brief model.Brief) (string, error)
}

func (m *mockContextProvider) Context(ctx context.Context, topic string, brief model.Brief) (string, error) {
	return m.contextFn(ctx, topic, brief)
}

type mockLLMClient struct {
	chatFn    func(ctx context.Context, req llm.Request, result any) (*llm.Response, error)
	callCount int
	lastReq   llm.Request
}

func (m *mockLLMClient) Chat(ctx context.Context, req llm.Request, result any) (*llm.Response, error) {
	m.callCount++
	m.lastReq = req
	return m.chatFn(ctx, req, result)
}

func (m *mockLLMClient) Model() string {
	return "mock-model"
}

func ptr(v float64) *float64 {
	return &v
}
