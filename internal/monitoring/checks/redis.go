package checks

import (
	"context"
	"time"

	"github.com/charlesng35/formdesk/internal/monitoring"
)

const defaultRedisTimeout = 2 * time.Second

// RedisPinger is satisfied by cache.RedisStore.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Redis returns a readiness probe for the rate limit store. A disabled Redis
// reports up.
func Redis(client RedisPinger, enabled bool, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if !enabled {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "redis disabled",
				Duration: time.Since(start),
			}
		}
		if client == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "redis unavailable",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultRedisTimeout))
		defer cancel()

		if err := client.Ping(probeCtx); err != nil {
			return monitoring.ResultFromError("redis", err, time.Since(start))
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Duration: time.Since(start),
		}
	})
}
