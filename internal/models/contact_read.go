package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactRead marks a submission as read by a user. At most one row exists per pair.
type ContactRead struct {
	ID                  string    `gorm:"primaryKey;size:36" json:"id"`
	ContactSubmissionID string    `gorm:"size:36;not null;uniqueIndex:idx_contact_reads_submission_user,priority:1" json:"contact_submission_id"`
	UserID              string    `gorm:"size:36;not null;index;uniqueIndex:idx_contact_reads_submission_user,priority:2" json:"user_id"`
	User                *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	ReadAt              time.Time `gorm:"not null" json:"read_at"`
	CreatedAt           time.Time `json:"created_at"`
}

func (r *ContactRead) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ReadAt.IsZero() {
		r.ReadAt = time.Now().UTC()
	}
	return nil
}
