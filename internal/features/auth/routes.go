package auth

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes sets up authentication endpoints under /users.
// These routes are public by design.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler) {
	users := router.Group("/users")
	{
		users.POST("/register", handler.Register)
		users.POST("/login", handler.Login)
		users.GET("/login/google/url", handler.GoogleAuthURL)
		users.POST("/login/google", handler.GoogleSignIn)
		users.POST("/logout", handler.Logout)
		users.POST("/refresh-token", handler.RefreshToken)
		users.POST("/forgot-password", handler.RequestPasswordReset)
		users.POST("/reset-password", handler.ResetPassword)
	}
}
