package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/handlers"
	"github.com/charlesng35/formdesk/internal/middleware"
	"github.com/charlesng35/formdesk/internal/models"
)

func registerAuditRoutes(api *gin.RouterGroup, logs *handlers.AuditHandler, posture *handlers.SecurityHandler) {
	superadmin := middleware.RequireRole(models.RoleSuperAdmin)
	api.GET("/audit", superadmin, logs.List)
	api.GET("/security/audit", superadmin, posture.Audit)
}
