package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/formdesk/internal/models"
)

// DatabaseStore implements Store on the primary SQL database.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// IncrementWithTTL increments a counter row under a row lock.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errors.New("cache: database store not initialised")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now()
	var (
		count  int64
		expiry time.Time
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&entry, "key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			count = 1
			expiry = now.Add(window)
			return tx.Create(&models.CacheEntry{
				Key:       key,
				Value:     []byte("1"),
				ExpiresAt: expiry,
			}).Error
		}
		if err != nil {
			return err
		}

		if !entry.ExpiresAt.After(now) {
			count = 1
			expiry = now.Add(window)
		} else {
			current, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			count = current + 1
			expiry = entry.ExpiresAt
		}
		return tx.Model(&models.CacheEntry{}).
			Where("key = ?", key).
			Updates(map[string]interface{}{
				"value":      []byte(strconv.FormatInt(count, 10)),
				"expires_at": expiry,
			}).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return count, expiry.Sub(now), nil
}

// Ping checks the database connection.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	if s == nil {
		return errors.New("cache: database store not initialised")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// PurgeExpired deletes counters whose window has ended.
func (s *DatabaseStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errors.New("cache: database store not initialised")
	}
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now()).
		Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}
