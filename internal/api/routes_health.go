package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formdesk/internal/app"
	"github.com/charlesng35/formdesk/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, manager *monitoring.HealthManager) {
	if !cfg.Monitoring.Health.Enabled || manager == nil {
		r.GET("/health", disabledHealthHandler)
		r.GET("/health/live", disabledHealthHandler)
		r.GET("/health/ready", disabledHealthHandler)
		return
	}

	r.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()
		report := monitoring.MergeReports(manager.EvaluateLiveness(ctx), manager.EvaluateReadiness(ctx))
		c.JSON(healthStatus(report), gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checked_at": report.CheckedAt,
		})
	})

	r.GET("/health/live", func(c *gin.Context) {
		writeHealthReport(c, manager.EvaluateLiveness(c.Request.Context()))
	})

	r.GET("/health/ready", func(c *gin.Context) {
		writeHealthReport(c, manager.EvaluateReadiness(c.Request.Context()))
	})
}

func disabledHealthHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}

func healthStatus(report monitoring.HealthReport) int {
	if !report.Success {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeHealthReport(c *gin.Context, report monitoring.HealthReport) {
	c.JSON(healthStatus(report), report)
}
