package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/formdesk/internal/payload"
)

// ContactSubmission stores one posted contact form. Data holds the body verbatim;
// FieldOrder remembers the order keys were submitted in, because some databases
// normalise JSON object key order.
type ContactSubmission struct {
	ID             string                      `gorm:"primaryKey;size:36" json:"id"`
	Category       Station                     `gorm:"size:32;not null;index" json:"category"`
	WebformID      *string                     `gorm:"size:191;index;index:idx_webform_created,priority:1" json:"webform_id"`
	SubmissionForm *string                     `gorm:"size:191" json:"submission_form"`
	Station        *string                     `gorm:"size:64;index;index:idx_station_created,priority:1" json:"station"`
	Data           datatypes.JSON              `gorm:"not null" json:"data"`
	FieldOrder     datatypes.JSONSlice[string] `json:"-"`
	IPAddress      string                      `gorm:"size:45" json:"ip_address"`
	CreatedAt      time.Time                   `gorm:"index;index:idx_webform_created,priority:2;index:idx_station_created,priority:2" json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`

	Reads []ContactRead `gorm:"foreignKey:ContactSubmissionID;constraint:OnDelete:CASCADE" json:"reads,omitempty"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (s *ContactSubmission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Payload decodes the stored body, restoring submission key order.
func (s *ContactSubmission) Payload() (*payload.Payload, error) {
	if len(s.Data) == 0 {
		return payload.New(), nil
	}
	p, err := payload.Parse(s.Data)
	if err != nil {
		return nil, err
	}
	if len(s.FieldOrder) > 0 {
		p = p.Reorder(s.FieldOrder)
	}
	return p, nil
}
