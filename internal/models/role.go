package models

const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
)

// Role groups users by what they may manage. Reviewing submissions is open to
// every role; user management is reserved for superadmins.
type Role struct {
	BaseModel

	Name        string `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
}

// SystemRoles returns the roles seeded on startup.
func SystemRoles() []Role {
	return []Role{
		{Name: RoleSuperAdmin, Description: "Manages users and all submissions"},
		{Name: RoleAdmin, Description: "Reviews submissions across stations"},
		{Name: RoleUser, Description: "Reviews submissions"},
	}
}

// ValidRole reports whether name is one of the system roles.
func ValidRole(name string) bool {
	switch name {
	case RoleSuperAdmin, RoleAdmin, RoleUser:
		return true
	}
	return false
}
