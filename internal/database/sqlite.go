package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteDriverName is the database/sql driver registered with the SQL functions
// the submission filters rely on.
const SQLiteDriverName = "sqlite3_formdesk"

var registerSQLite sync.Once

func registerSQLiteDriver() {
	registerSQLite.Do(func() {
		sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc("haversine_km", sqliteHaversine, true); err != nil {
					return err
				}
				// the built-in lower only folds ASCII
				return conn.RegisterFunc("lower", sqliteLower, true)
			},
		})
	})
}

func openSQLite(cfg Config) (*gorm.DB, error) {
	registerSQLiteDriver()

	dsn := cfg.DSN

	if dsn == "" {
		path := strings.TrimSpace(cfg.Path)
		switch {
		case path == "", strings.EqualFold(path, ":memory:"):
			dsn = "file::memory:?cache=shared&_foreign_keys=1"
		default:
			if err := ensureDir(path); err != nil {
				return nil, err
			}
			dsn = fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000", filepath.ToSlash(path))
		}
	}

	db, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: SQLiteDriverName, DSN: dsn}), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		NowFunc:                                  utcNow,
		DisableForeignKeyConstraintWhenMigrating: false,
	})
	if err != nil {
		return nil, err
	}

	if err := enableForeignKeys(db); err != nil {
		return nil, err
	}

	return db, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func enableForeignKeys(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil && err != sql.ErrConnDone {
		return err
	}
	return nil
}

// sqliteHaversine backs the haversine_km SQL function. It returns -1 when any
// coordinate is missing or not numeric so callers can exclude those rows.
func sqliteHaversine(lat1, lng1, lat2, lng2 interface{}) float64 {
	coords := make([]float64, 0, 4)
	for _, v := range []interface{}{lat1, lng1, lat2, lng2} {
		f, ok := numericArg(v)
		if !ok {
			return -1
		}
		coords = append(coords, f)
	}
	return HaversineKM(coords[0], coords[1], coords[2], coords[3])
}

// sqliteLower replaces the built-in lower with Unicode case folding so that
// searches for "müller" match "MÜLLER". NULL stays NULL.
func sqliteLower(v interface{}) interface{} {
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		return strings.ToLower(s)
	case []byte:
		return strings.ToLower(string(s))
	default:
		return v
	}
}
