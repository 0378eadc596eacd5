package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/boardroom/common/logger"
	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/orchestrator"
	"basegraph.app/boardroom/internal/store"
)

var (
	ErrDiscussionNotFound = errors.New("discussion not found")
	// ErrDiscussionRemote is returned when cancelling an active discussion
	// that another replica is running.
	ErrDiscussionRemote = errors.New("discussion is running on another replica")
	// ErrUnavailable is returned when this replica no longer accepts new
	// discussions.
	ErrUnavailable = errors.New("service is shutting down, retry on another replica")
)

// Orchestrator is the in-process registry of running discussions.
type Orchestrator interface {
	Start(ctx context.Context, plan model.Plan, brief model.Brief) (*model.Discussion, error)
	Get(discussionID string) (*model.Discussion, bool)
	Cancel(discussionID string) (*model.Discussion, bool)
}

// DiscussionReader is a secondary source of snapshots, such as the shared
// cache or the archive.
type DiscussionReader interface {
	Get(ctx context.Context, discussionID string) (*model.Discussion, error)
}

type StartParams struct {
	SessionID   string
	Plan        model.Plan
	Context     string
	UserMessage string
}

type CollaborationService interface {
	Start(ctx context.Context, params StartParams) (*model.Discussion, error)
	Get(ctx context.Context, discussionID string) (*model.Discussion, error)
	Cancel(ctx context.Context, discussionID string) (*model.Discussion, error)
}

type collaborationService struct {
	orchestrator Orchestrator
	readers      []DiscussionReader
}

// NewCollaborationService builds the service. Readers are consulted in order
// when a discussion is not held in memory.
func NewCollaborationService(orchestrator Orchestrator, readers ...DiscussionReader) CollaborationService {
	return &collaborationService{orchestrator: orchestrator, readers: readers}
}

func (s *collaborationService) Start(ctx context.Context, params StartParams) (*model.Discussion, error) {
	d, err := s.orchestrator.Start(ctx, params.Plan, model.Brief{
		SessionID:   params.SessionID,
		Context:     params.Context,
		UserMessage: params.UserMessage,
	})
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		if errors.Is(err, orchestrator.ErrShuttingDown) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("starting discussion: %w", err)
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{DiscussionID: logger.Ptr(d.ID)})
	slog.InfoContext(ctx, "collaboration started",
		"session_id", params.SessionID,
		"topic", logger.Truncate(params.Plan.DiscussionTopic, 120),
		"agents", params.Plan.RequiredAgents)

	return d, nil
}

func (s *collaborationService) Get(ctx context.Context, discussionID string) (*model.Discussion, error) {
	if d, ok := s.orchestrator.Get(discussionID); ok {
		return d, nil
	}
	return s.lookup(ctx, discussionID)
}

func (s *collaborationService) Cancel(ctx context.Context, discussionID string) (*model.Discussion, error) {
	if d, ok := s.orchestrator.Cancel(discussionID); ok {
		slog.InfoContext(ctx, "cancellation requested", "discussion_id", discussionID)
		return d, nil
	}

	d, err := s.lookup(ctx, discussionID)
	if err != nil {
		return nil, err
	}
	if !d.Status.IsTerminal() {
		return nil, ErrDiscussionRemote
	}
	// Already finished, nothing to cancel.
	return d, nil
}

func (s *collaborationService) lookup(ctx context.Context, discussionID string) (*model.Discussion, error) {
	for _, r := range s.readers {
		d, err := r.Get(ctx, discussionID)
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "discussion lookup failed",
				"error", err,
				"discussion_id", discussionID)
		}
	}
	return nil, ErrDiscussionNotFound
}
