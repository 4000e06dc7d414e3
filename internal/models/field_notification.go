package models

import (
	"time"

	"gorm.io/datatypes"
)

// FieldNotification tracks payload keys that appeared on a form for the first
// time. The row is live until ExpiresAt or until a reviewer clears it.
type FieldNotification struct {
	WebformID string                      `gorm:"primaryKey;size:191" json:"webform_id"`
	Fields    datatypes.JSONSlice[string] `json:"fields"`
	ExpiresAt time.Time                   `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time                   `json:"created_at"`
	UpdatedAt time.Time                   `json:"updated_at"`
}

// Live reports whether the notification has not yet expired.
func (n *FieldNotification) Live(now time.Time) bool {
	return n != nil && now.Before(n.ExpiresAt)
}
