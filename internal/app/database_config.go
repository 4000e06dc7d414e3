package app

import (
	"strings"

	"github.com/charlesng35/formdesk/internal/database"
)

// ConnectionConfig converts the database section into the database package
// representation, picking the host settings of the selected driver.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            c.Path,
		DSN:             strings.TrimSpace(c.DSN),
		PostgresDriver:  c.PostgresDriver,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var host DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		host = c.Postgres
	case "mysql":
		host = c.MySQL
	default:
		return cfg
	}
	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.Name = host.Database
	cfg.User = host.Username
	cfg.Password = host.Password
	cfg.Options = host.Options
	return cfg
}
