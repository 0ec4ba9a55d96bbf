package progress

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up progress endpoints under /courses/:id/videos/:videoId/progress.
// Auth middleware should be applied at the router group level before calling this.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler) {
	records := router.Group("/courses/:id/videos/:videoId/progress")
	{
		records.GET("", handler.Get)
		records.POST("", handler.Save)
	}
}
