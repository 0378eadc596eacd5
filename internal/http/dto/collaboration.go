package dto

import "basegraph.app/boardroom/internal/model"

type Action string

const (
	ActionStartCollaboration Action = "start_collaboration"
	ActionGetDiscussion      Action = "get_discussion"
)

// CollaborationRequest is the action-dispatched body of POST /api/collaboration.
// Fields not used by an action are ignored.
type CollaborationRequest struct {
	Action Action `json:"action" binding:"required"`

	// start_collaboration
	SessionID   string      `json:"sessionId"`
	Plan        *model.Plan `json:"plan"`
	Context     string      `json:"context"`
	UserMessage string      `json:"userMessage"`

	// get_discussion
	DiscussionID string `json:"discussionId"`
}

type CollaborationResponse struct {
	Success    bool              `json:"success"`
	Discussion *model.Discussion `json:"discussion,omitempty"`
	Error      string            `json:"error,omitempty"`
}

func Success(d *model.Discussion) CollaborationResponse {
	return CollaborationResponse{Success: true, Discussion: d}
}

func Failure(msg string) CollaborationResponse {
	return CollaborationResponse{Success: false, Error: msg}
}
