package models

import "time"

// AuthorizationProfile bundles policy records into a reusable grant profile.
// A profile may be scoped to a single organizational unit; profiles without
// an org unit are unrestricted for org-unit filtering purposes.
type AuthorizationProfile struct {
	BaseModel

	Name        string  `gorm:"uniqueIndex;not null" json:"name"`
	OrgUnitSlug *string `gorm:"index" json:"org_unit_slug"`

	PolicyRecords []PolicyRecord `gorm:"many2many:profile_policy_records;" json:"policy_records,omitempty"`
}

// UserAuthorizationProfile links a user to an authorization profile for a
// bounded period. A nil EndDate means the membership is indefinite.
type UserAuthorizationProfile struct {
	BaseModel

	UserID    string     `gorm:"type:uuid;not null;index:idx_user_profile,priority:1" json:"user_id"`
	ProfileID string     `gorm:"type:uuid;not null;index:idx_user_profile,priority:2" json:"profile_id"`
	StartDate time.Time  `gorm:"not null" json:"start_date"`
	EndDate   *time.Time `json:"end_date"`

	User    User                 `gorm:"foreignKey:UserID" json:"-"`
	Profile AuthorizationProfile `gorm:"foreignKey:ProfileID" json:"-"`
}

// ActiveAt reports whether the membership window contains the given moment.
// Boundaries are inclusive on both ends.
func (p *UserAuthorizationProfile) ActiveAt(now time.Time) bool {
	if p.StartDate.After(now) {
		return false
	}
	return p.EndDate == nil || !p.EndDate.Before(now)
}
