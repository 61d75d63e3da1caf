package models

// Permission object types recognised by the access-control layer.
const (
	ObjectTypeCase     = "case"
	ObjectTypeDocument = "document"
	ObjectTypeReport   = "report"
)

// PolicyRecord is a blueprint-style grant: one permission matched against many
// objects through a structural scope. Empty Catalog or TypeIdentifier acts as
// a wildcard. Records are deduplicated on the full (permission, scope) tuple
// so identical policies are never stored twice.
type PolicyRecord struct {
	BaseModel

	Permission         string `gorm:"not null;uniqueIndex:idx_policy_scope,priority:1" json:"permission"`
	ObjectType         string `gorm:"type:varchar(32);not null;uniqueIndex:idx_policy_scope,priority:2" json:"object_type"`
	Catalog            string `gorm:"uniqueIndex:idx_policy_scope,priority:3" json:"catalog"`
	TypeIdentifier     string `gorm:"uniqueIndex:idx_policy_scope,priority:4" json:"type_identifier"`
	MaxConfidentiality string `gorm:"not null;uniqueIndex:idx_policy_scope,priority:5" json:"max_confidentiality"`

	Profiles []AuthorizationProfile `gorm:"many2many:profile_policy_records;" json:"profiles,omitempty"`
}
