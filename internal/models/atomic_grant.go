package models

import "time"

// Reasons recorded on user-level atomic grants.
const (
	ReasonRoleBased     = "role-based"
	ReasonAccessGranted = "access-granted"
	ReasonActivity      = "activity"
	ReasonAdviser       = "adviser"
	ReasonApprover      = "approver"
)

// AtomicGrant ties a permission to exactly one object URL. The grant itself is
// user-agnostic; users are attached through UserAtomicGrant rows.
type AtomicGrant struct {
	BaseModel

	Permission string `gorm:"not null;uniqueIndex:idx_grant_object,priority:1" json:"permission"`
	ObjectType string `gorm:"type:varchar(32);not null" json:"object_type"`
	ObjectURL  string `gorm:"not null;uniqueIndex:idx_grant_object,priority:2" json:"object_url"`
}

// UserAtomicGrant attaches an atomic grant to a user for a validity window.
// A nil EndDate means indefinite access. Rows are never edited after creation;
// extensions are handled by superseding with a new row.
type UserAtomicGrant struct {
	BaseModel

	UserID        string `gorm:"type:uuid;not null;index" json:"user_id"`
	AtomicGrantID string `gorm:"type:uuid;not null;index" json:"atomic_grant_id"`

	StartDate time.Time  `gorm:"not null" json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Comment   string     `json:"comment"`
	Reason    string     `gorm:"type:varchar(32);not null" json:"reason"`

	AccessRequestID *string `gorm:"type:uuid;index" json:"access_request_id"`

	User        User        `gorm:"foreignKey:UserID" json:"-"`
	AtomicGrant AtomicGrant `gorm:"foreignKey:AtomicGrantID" json:"-"`
}

// ActiveAt reports whether the grant window contains the given moment, with
// inclusive boundaries at both ends.
func (g *UserAtomicGrant) ActiveAt(now time.Time) bool {
	if g.StartDate.After(now) {
		return false
	}
	return g.EndDate == nil || !g.EndDate.Before(now)
}
