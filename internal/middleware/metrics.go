package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/pkg/metrics"
)

// unmatchedRoute labels requests no route matched, so scanners probing random
// paths cannot grow the latency series without bound.
const unmatchedRoute = "unmatched"

// Metrics observes request latency by method, route template and status.
// Paths listed in skip (the scrape endpoint) are not observed.
func Metrics(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skipped[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := c.Writer.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.APILatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	}
}
