package models

import (
	"strings"
	"time"
)

// User describes an account known to the access-control layer. Accounts are
// provisioned by the authenticating reverse proxy; no credentials are stored.
type User struct {
	BaseModel

	Username  string `gorm:"uniqueIndex;not null" json:"username"`
	Email     string `gorm:"index" json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	IsSuperuser bool `gorm:"default:false" json:"is_superuser"`
	IsActive    bool `gorm:"default:true" json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at"`
}

// FullName returns the display name, falling back to the username.
func (u *User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}
