package chat

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up chat endpoints under /chat/course/:courseId.
// Auth middleware should be applied at the router group level before calling this.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler) {
	rooms := router.Group("/chat/course/:courseId")
	{
		rooms.GET("", handler.GetRoom)
		rooms.POST("/messages", handler.SendMessage)
		rooms.PATCH("/messages/read", handler.MarkRead)
		rooms.GET("/messages/unread", handler.UnreadCount)
	}
}
