package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/handlers"
	"github.com/charlesng35/formdesk/internal/middleware"
	"github.com/charlesng35/formdesk/internal/models"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler) {
	users := api.Group("/users", middleware.RequireRole(models.RoleSuperAdmin))
	{
		users.GET("", handler.List)
		users.POST("", handler.Create)
		users.GET("/:id", handler.Get)
		users.PUT("/:id", handler.Update)
		users.DELETE("/:id", handler.Deactivate)
		users.POST("/:id/restore", handler.Restore)
		users.DELETE("/:id/force", handler.ForceDelete)
	}
}
