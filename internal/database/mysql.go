package database

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: utcNow,
	})
}

// buildMySQLDSN renders a go-sql-driver DSN. Timestamps are parsed as UTC and the
// connection uses utf8mb4 so multi-byte form input survives. Options are parsed by
// the driver, so an invalid value fails here rather than on first connect.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql configuration requires user and database name")
	}

	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 3306
	}

	mc := mysqldriver.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}

	dsn := mc.FormatDSN()
	if len(cfg.Options) == 0 {
		return dsn, nil
	}

	keys := make([]string, 0, len(cfg.Options))
	for key := range cfg.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	extra := url.Values{}
	for _, key := range keys {
		extra.Set(key, cfg.Options[key])
	}

	sep := "?"
	if containsQuery(dsn) {
		sep = "&"
	}
	parsed, err := mysqldriver.ParseDSN(dsn + sep + extra.Encode())
	if err != nil {
		return "", fmt.Errorf("mysql options: %w", err)
	}
	return parsed.FormatDSN(), nil
}

// containsQuery reports whether the DSN already carries parameters after the database name.
func containsQuery(dsn string) bool {
	for i := len(dsn) - 1; i >= 0; i-- {
		switch dsn[i] {
		case '?':
			return true
		case '/':
			return false
		}
	}
	return false
}
