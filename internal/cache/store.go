// Package cache provides the shared counter stores used for request throttling.
package cache

import (
	"context"
	"time"
)

// Store is a counter store shared by all server instances.
type Store interface {
	// IncrementWithTTL increments key and returns the new count and the time
	// left in the current window. The window starts with the first increment.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
