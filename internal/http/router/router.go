package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/boardroom/internal/http/handler"
	"basegraph.app/boardroom/internal/service"
)

func SetupRoutes(router *gin.Engine, services *service.Services) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := handler.NewCollaborationHandler(services.Collaboration())

	CollaborationRouter(router.Group("/api"), h)

	v1 := router.Group("/api/v1")
	{
		DiscussionRouter(v1.Group("/discussions"), h)
	}
}
