package models

import (
	"gorm.io/datatypes"
)

// DefaultPreferenceName is the preference used by list views when none is requested.
const DefaultPreferenceName = "list-view-columns"

// TablePreference stores a user's saved table layout for a category scope.
// Category is a colon-delimited scope ("station:type:form"); the empty string is
// the global scope.
type TablePreference struct {
	BaseModel

	UserID         string                      `gorm:"size:36;not null;index;uniqueIndex:idx_user_category_name,priority:1" json:"user_id"`
	Category       string                      `gorm:"size:191;not null;default:'';uniqueIndex:idx_user_category_name,priority:2" json:"-"`
	PreferenceName string                      `gorm:"size:100;not null;uniqueIndex:idx_user_category_name,priority:3" json:"preference_name"`
	VisibleColumns datatypes.JSONSlice[string] `json:"visible_columns"`
	SortConfig     datatypes.JSON              `json:"sort_config"`
	SavedFilters   datatypes.JSON              `json:"saved_filters"`
	IsDefault      bool                        `gorm:"not null;default:false;index" json:"is_default"`
}

// CategoryOrNil exposes the global scope as a nil category.
func (p *TablePreference) CategoryOrNil() *string {
	if p.Category == "" {
		return nil
	}
	c := p.Category
	return &c
}
