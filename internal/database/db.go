package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Config contains database connection options.
type Config struct {
	Driver string
	Path   string // SQLite database path when Driver == sqlite
	DSN    string // Optional DSN override

	Host     string
	Port     int
	Name     string
	User     string
	Password string
	Options  map[string]string

	// PostgresDriver selects the database/sql driver used for postgres: "pgx" (default) or "pq".
	PostgresDriver string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open initialises a gorm.DB using the provided configuration.
func Open(cfg Config) (*gorm.DB, error) {
	driver := strings.ToLower(cfg.Driver)
	if driver == "" {
		driver = "sqlite"
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres", "postgresql":
		db, err = openPostgres(cfg)
	case "mysql":
		db, err = openMySQL(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := configurePool(db, cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// utcNow keeps timestamps comparable across drivers that store them as text.
func utcNow() time.Time {
	return time.Now().UTC()
}

func configurePool(db *gorm.DB, cfg Config) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}

// AutoMigrateAndSeed convenience helper used during application start-up.
func AutoMigrateAndSeed(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	if err := SeedData(db); err != nil {
		return fmt.Errorf("seed data: %w", err)
	}

	return nil
}
