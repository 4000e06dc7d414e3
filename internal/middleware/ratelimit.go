package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/formdesk/pkg/errors"
	"github.com/charlesng35/formdesk/pkg/logger"
	"github.com/charlesng35/formdesk/pkg/response"
)

// RateLimit limits requests per (client IP, route) within a fixed window
// using store. Store failures let the request through.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		key := "ratelimit:" + c.ClientIP() + "|" + path

		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate limit store failed", zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())+1))
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
