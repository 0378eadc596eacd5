package router

import (
	"github.com/gin-gonic/gin"

	"basegraph.app/boardroom/internal/http/handler"
)

func CollaborationRouter(rg *gin.RouterGroup, h *handler.CollaborationHandler) {
	rg.POST("/collaboration", h.Dispatch)
}

func DiscussionRouter(rg *gin.RouterGroup, h *handler.CollaborationHandler) {
	rg.GET("/:id", h.Get)
	rg.POST("/:id/cancel", h.Cancel)
}
