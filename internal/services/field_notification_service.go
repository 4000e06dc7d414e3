package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/formdesk/internal/models"
)

// DefaultNewFieldTTL is how long a new-field notification stays visible.
const DefaultNewFieldTTL = 24 * time.Hour

// FieldNotificationService tracks keys that appeared on a form for the first time.
type FieldNotificationService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewFieldNotificationService constructs a FieldNotificationService.
func NewFieldNotificationService(db *gorm.DB, ttl time.Duration) (*FieldNotificationService, error) {
	if db == nil {
		return nil, errors.New("field notification service: db is required")
	}
	if ttl <= 0 {
		ttl = DefaultNewFieldTTL
	}
	return &FieldNotificationService{db: db, ttl: ttl, now: utcNow}, nil
}

// Record merges fields into the live notification of a form and extends its expiry.
func (s *FieldNotificationService) Record(ctx context.Context, webformID string, fields []string) error {
	ctx = ensureContext(ctx)

	webformID = strings.TrimSpace(webformID)
	fields = normaliseKeys(fields)
	if webformID == "" || len(fields) == 0 {
		return nil
	}

	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.FieldNotification
		err := tx.Where("webform_id = ?", webformID).Take(&existing).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		merged := fields
		if err == nil && existing.Live(now) {
			merged = normaliseKeys(append(append([]string{}, existing.Fields...), fields...))
		}

		record := models.FieldNotification{
			WebformID: webformID,
			Fields:    merged,
			ExpiresAt: now.Add(s.ttl),
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "webform_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"fields", "expires_at", "updated_at"}),
		}).Create(&record).Error
	})
	if err != nil {
		return fmt.Errorf("field notification service: record: %w", err)
	}
	return nil
}

// Live returns the unexpired new field keys of a form.
func (s *FieldNotificationService) Live(ctx context.Context, webformID string) ([]string, error) {
	ctx = ensureContext(ctx)

	var record models.FieldNotification
	err := s.db.WithContext(ctx).Where("webform_id = ?", strings.TrimSpace(webformID)).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("field notification service: load: %w", err)
	}
	if !record.Live(s.now()) {
		return []string{}, nil
	}
	return append([]string{}, record.Fields...), nil
}

// Clear dismisses the notification of a form.
func (s *FieldNotificationService) Clear(ctx context.Context, webformID string) error {
	ctx = ensureContext(ctx)

	err := s.db.WithContext(ctx).
		Where("webform_id = ?", strings.TrimSpace(webformID)).
		Delete(&models.FieldNotification{}).Error
	if err != nil {
		return fmt.Errorf("field notification service: clear: %w", err)
	}
	return nil
}

// PurgeExpired removes notifications past their expiry.
func (s *FieldNotificationService) PurgeExpired(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now()).Delete(&models.FieldNotification{})
	if result.Error != nil {
		return 0, fmt.Errorf("field notification service: purge expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}
