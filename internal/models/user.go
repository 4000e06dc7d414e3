package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a staff account. Soft-deleted users are deactivated and may be restored.
type User struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Name     string `gorm:"size:191;not null" json:"name"`
	Email    string `gorm:"size:191;uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	RoleID string `gorm:"size:36;index" json:"role_id"`
	Role   *Role  `gorm:"foreignKey:RoleID" json:"role,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `gorm:"size:45" json:"last_login_ip"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// RoleName returns the loaded role name or an empty string.
func (u *User) RoleName() string {
	if u == nil || u.Role == nil {
		return ""
	}
	return u.Role.Name
}

// IsActive reports whether the user has not been deactivated.
func (u *User) IsActive() bool {
	return u != nil && !u.DeletedAt.Valid
}
