package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/handlers"
)

func registerPreferenceRoutes(api *gin.RouterGroup, handler *handlers.PreferenceHandler) {
	prefs := api.Group("/preferences")
	{
		prefs.GET("", handler.Index)
		prefs.POST("", handler.Store)
		prefs.GET("/inherited", handler.Inherited)
		prefs.GET("/:id", handler.Show)
		prefs.POST("/:id/load", handler.Load)
		prefs.GET("/:id/load", handler.Load)
		prefs.PUT("/:id", handler.Update)
		prefs.DELETE("/:id", handler.Destroy)
	}
}
