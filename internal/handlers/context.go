package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/middleware"
	"github.com/charlesng35/formdesk/internal/models"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

func currentUserID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserIDKey)
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(middleware.CtxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
