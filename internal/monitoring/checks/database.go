package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/models"
	"github.com/charlesng35/formdesk/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database returns a readiness probe for the submission store. It pings the
// pool and confirms the submissions table exists, since intake cannot work
// against an unmigrated schema. Pool usage is reported in the details.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		if db == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "database not configured"}
		}
		start := time.Now()

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}
		if !db.WithContext(probeCtx).Migrator().HasTable(&models.ContactSubmission{}) {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "contact submissions table missing"}
		}

		stats := sqlDB.Stats()
		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  fmt.Sprintf("%s pool open=%d in_use=%d", db.Dialector.Name(), stats.OpenConnections, stats.InUse),
			Duration: time.Since(start),
		}
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
