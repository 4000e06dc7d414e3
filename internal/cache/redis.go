package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters of the Redis store.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "formdesk:"
)

// RedisStore implements Store on Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	store := NewRedisStoreFromClient(redis.NewClient(opts))
	if err := store.Ping(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// IncrementWithTTL increments the prefixed key and starts its window on the
// first increment.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	k := prefixed(key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	}); err != nil {
		return 0, 0, fmt.Errorf("redis: increment: %w", err)
	}

	remaining := ttl.Val()
	if remaining < 0 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis: expire: %w", err)
		}
		remaining = window
	}
	return incr.Val(), remaining, nil
}

// Ping checks that Redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func prefixed(key string) string {
	if strings.HasPrefix(key, redisKeyPrefix) {
		return key
	}
	return redisKeyPrefix + key
}
