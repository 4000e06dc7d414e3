package app

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/charlesng35/formdesk/internal/cache"
)

// RedisClientConfig maps cache.redis onto the counter store settings. The
// address may be a redis:// or rediss:// URL; its credentials, database and
// TLS flag fill whatever the section leaves unset.
func (c CacheConfig) RedisClientConfig() (cache.RedisConfig, error) {
	rc := cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
	if !strings.Contains(rc.Address, "://") {
		return rc, nil
	}

	opts, err := redis.ParseURL(rc.Address)
	if err != nil {
		return cache.RedisConfig{}, fmt.Errorf("cache.redis.address: %w", err)
	}
	rc.Address = opts.Addr
	if rc.Username == "" {
		rc.Username = opts.Username
	}
	if rc.Password == "" {
		rc.Password = opts.Password
	}
	if rc.DB == 0 {
		rc.DB = opts.DB
	}
	rc.TLS = rc.TLS || opts.TLSConfig != nil
	return rc, nil
}
