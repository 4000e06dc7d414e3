package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/handlers"
)

func registerContactRoutes(r *gin.Engine, handler *handlers.ContactHandler, throttle gin.HandlerFunc) {
	r.POST("/contact/:station", throttle, handler.Submit)
}
