package course

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/edutech/marketplace-server-go/pkg/middleware"
	"github.com/edutech/marketplace-server-go/pkg/types"
)

// RegisterRoutes sets up course endpoints under /courses.
// Catalog reads are public; mutations require the matching role.
func RegisterRoutes(router *gin.RouterGroup, handler *Handler, db *gorm.DB, jwtSecret string, logger *slog.Logger) {
	courses := router.Group("/courses")
	{
		courses.GET("", handler.List)
		courses.GET("/:id", handler.GetByID)

		tutorOnly := middleware.RequireRoles(db, jwtSecret, logger, types.RoleTutor)
		courses.POST("", tutorOnly, handler.Create)
		courses.PATCH("/:id", tutorOnly, handler.Update)
		courses.DELETE("/:id", tutorOnly, handler.Delete)
		courses.POST("/:id/thumbnail", tutorOnly, handler.UploadThumbnail)
		courses.POST("/:id/videos", tutorOnly, handler.AddVideo)

		studentOnly := middleware.RequireRoles(db, jwtSecret, logger, types.RoleStudent)
		courses.POST("/:id/enroll", studentOnly, handler.Enroll)
	}
}
