package models

// OrgUnit represents an organizational unit used to narrow blueprint grants
// to cases assigned to specific organizational roles.
type OrgUnit struct {
	BaseModel

	Slug string `gorm:"uniqueIndex;not null" json:"slug"`
	Name string `gorm:"not null" json:"name"`
}
