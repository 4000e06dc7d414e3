package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.ContactSubmission{},
		&models.ContactRead{},
		&models.TablePreference{},
		&models.FieldNotification{},
		&models.CacheEntry{},
		&models.AuditLog{},
	)
}

// SeedData populates the system roles.
func SeedData(db *gorm.DB) error {
	for _, role := range models.SystemRoles() {
		if err := db.Where(models.Role{Name: role.Name}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
	}
	return nil
}
