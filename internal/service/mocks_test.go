package service_test

import (
	"context"

	"basegraph.app/boardroom/internal/model"
)

type mockOrchestrator struct {
	startFn  func(ctx context.Context, plan model.Plan, brief model.Brief) (*model.Discussion, error)
	getFn    func(discussionID string) (*model.Discussion, bool)
	cancelFn func(discussionID string) (*model.Discussion, bool)
}

func (m *mockOrchestrator) Start(ctx context.Context, plan model.Plan, brief model.Brief) (*model.Discussion, error) {
	if m.startFn != nil {
		return m.startFn(ctx, plan, brief)
	}
	return nil, nil
}

func (m *mockOrchestrator) Get(discussionID string) (*model.Discussion, bool) {
	if m.getFn != nil {
		return m.getFn(discussionID)
	}
	return nil, false
}

func (m *mockOrchestrator) Cancel(discussionID string) (*model.Discussion, bool) {
	if m.cancelFn != nil {
		return m.cancelFn(discussionID)
	}
	return nil, false
}

type mockReader struct {
	getFn func(ctx context.Context, discussionID string) (*model.Discussion, error)
	calls int
}

func (m *mockReader) Get(ctx context.Context, discussionID string) (*model.Discussion, error) {
	m.calls++
	if m.getFn != nil {
		return m.getFn(ctx, discussionID)
	}
	return nil, nil
}

func validPlan() model.Plan {
	return model.Plan{
		DiscussionTopic:    "Adopt a four-day work week",
		RequiredAgents:     []string{"CEO", "CFO", "CTO", "HR"},
		MaxRounds:          3,
		ConsensusThreshold: 0.7,
		TimeoutMinutes:     5,
		Facilitator:        "CEO",
	}
}
