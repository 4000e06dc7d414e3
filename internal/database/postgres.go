package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openPostgres connects through pgx by default. postgres_driver "pq" routes the
// same DSN through lib/pq instead.
func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}

	pgCfg := postgres.Config{DSN: dsn}
	switch strings.ToLower(strings.TrimSpace(cfg.PostgresDriver)) {
	case "", "pgx":
	case "pq", "libpq":
		pgCfg.DriverName = "postgres"
	default:
		return nil, fmt.Errorf("unsupported postgres driver %q", cfg.PostgresDriver)
	}

	return gorm.Open(postgres.New(pgCfg), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: utcNow,
	})
}

// buildPostgresDSN renders a postgres:// URL, which both pgx and lib/pq accept.
// sslmode defaults to disable.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	query := url.Values{}
	for key, value := range cfg.Options {
		query.Set(key, value)
	}
	if query.Get("sslmode") == "" {
		query.Set("sslmode", "disable")
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	return u.String(), nil
}
