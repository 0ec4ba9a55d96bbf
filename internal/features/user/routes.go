package user

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up profile endpoints under /users.
// Auth middleware should be applied at the router group level before calling this.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler) {
	users := router.Group("/users")
	{
		users.GET("/profile", handler.GetProfile)
		users.PATCH("/profile", handler.UpdateProfile)
		users.POST("/profile/picture", handler.UploadProfilePicture)
	}
}
