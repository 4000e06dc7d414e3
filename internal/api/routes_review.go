package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/handlers"
)

type reviewHandlers struct {
	Dashboard *handlers.DashboardHandler
	Messages  *handlers.ContactMessageHandler
	Forms     *handlers.FormHandler
}

func registerReviewRoutes(api *gin.RouterGroup, h reviewHandlers) {
	api.GET("/dashboard", h.Dashboard.Show)

	messages := api.Group("/contact-messages")
	{
		messages.GET("", h.Messages.Index)
		messages.GET("/:id", h.Messages.Show)
		messages.POST("/:id/toggle-read", h.Messages.ToggleRead)
		messages.DELETE("/:id", h.Messages.Destroy)
	}

	forms := api.Group("/forms")
	{
		forms.GET("/:webformId", h.Forms.Show)
		forms.GET("/:webformId/export", h.Forms.Export)
		forms.DELETE("/:webformId/new-fields", h.Forms.ClearNewFields)
	}
}
