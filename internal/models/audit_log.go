package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records destructive and administrative actions.
type AuditLog struct {
	ID         string            `gorm:"primaryKey;size:36" json:"id"`
	UserID     *string           `gorm:"size:36;index" json:"user_id"`
	Action     string            `gorm:"size:100;not null;index" json:"action"`
	Resource   string            `gorm:"size:100;index" json:"resource"`
	ResourceID string            `gorm:"size:191" json:"resource_id"`
	Result     string            `gorm:"size:20;not null" json:"result"`
	IPAddress  string            `gorm:"size:45" json:"ip_address"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
