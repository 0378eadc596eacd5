package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/boardroom/internal/http/dto"
	"basegraph.app/boardroom/internal/model"
	"basegraph.app/boardroom/internal/service"
)

type CollaborationHandler struct {
	svc service.CollaborationService
}

func NewCollaborationHandler(svc service.CollaborationService) *CollaborationHandler {
	return &CollaborationHandler{svc: svc}
}

// Dispatch serves POST /api/collaboration, routing on the body's action.
func (h *CollaborationHandler) Dispatch(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CollaborationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, dto.Failure("invalid request body: "+err.Error()))
		return
	}

	switch req.Action {
	case dto.ActionStartCollaboration:
		h.start(c, req)
	case dto.ActionGetDiscussion:
		if req.DiscussionID == "" {
			c.JSON(http.StatusBadRequest, dto.Failure("discussionId is required"))
			return
		}
		h.get(c, req.DiscussionID)
	default:
		c.JSON(http.StatusBadRequest, dto.Failure(fmt.Sprintf("unknown action %q", req.Action)))
	}
}

// Get serves GET /api/v1/discussions/:id.
func (h *CollaborationHandler) Get(c *gin.Context) {
	h.get(c, c.Param("id"))
}

// Cancel serves POST /api/v1/discussions/:id/cancel. Cancellation takes
// effect before the next round, so the returned snapshot may still be active.
func (h *CollaborationHandler) Cancel(c *gin.Context) {
	d, err := h.svc.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.Success(d))
}

func (h *CollaborationHandler) start(c *gin.Context, req dto.CollaborationRequest) {
	if req.Plan == nil {
		c.JSON(http.StatusBadRequest, dto.Failure("plan is required"))
		return
	}

	d, err := h.svc.Start(c.Request.Context(), service.StartParams{
		SessionID:   req.SessionID,
		Plan:        *req.Plan,
		Context:     req.Context,
		UserMessage: req.UserMessage,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Success(d))
}

func (h *CollaborationHandler) get(c *gin.Context, discussionID string) {
	d, err := h.svc.Get(c.Request.Context(), discussionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Success(d))
}

func (h *CollaborationHandler) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		slog.InfoContext(ctx, "plan rejected", "problems", verr.Problems)
		c.JSON(http.StatusBadRequest, dto.Failure(err.Error()))
	case errors.Is(err, service.ErrDiscussionNotFound):
		c.JSON(http.StatusNotFound, dto.Failure(err.Error()))
	case errors.Is(err, service.ErrDiscussionRemote):
		c.JSON(http.StatusConflict, dto.Failure(err.Error()))
	case errors.Is(err, service.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, dto.Failure(err.Error()))
	default:
		slog.ErrorContext(ctx, "collaboration request failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.Failure("internal server error"))
	}
}
