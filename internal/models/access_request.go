package models

import "time"

// Access request results. An empty result means the request is still pending.
const (
	AccessRequestPending  = ""
	AccessRequestApproved = "approved"
	AccessRequestRejected = "rejected"
)

// AccessRequest captures a user-initiated request for access to one object.
// A request is handled exactly once; handling it produces atomic grants when
// approved. At most one pending request may exist per (requester, object_url),
// enforced at creation time.
type AccessRequest struct {
	BaseModel

	RequesterID string  `gorm:"type:uuid;not null;index" json:"requester_id"`
	HandlerID   *string `gorm:"type:uuid;index" json:"handler_id"`

	ObjectURL      string `gorm:"not null;index" json:"object_url"`
	Comment        string `json:"comment"`
	HandlerComment string `json:"handler_comment"`

	Result string `gorm:"type:varchar(16);not null;default:''" json:"result"`

	RequestedDate time.Time  `gorm:"not null" json:"requested_date"`
	HandledDate   *time.Time `json:"handled_date"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`

	Requester User  `gorm:"foreignKey:RequesterID" json:"-"`
	Handler   *User `gorm:"foreignKey:HandlerID" json:"-"`
}

// Pending reports whether the request is still awaiting a decision.
func (r *AccessRequest) Pending() bool {
	return r.Result == AccessRequestPending
}

// GrantsValidAt reports whether an approved request confers temporary access
// at the given moment. Pending and rejected requests never do.
func (r *AccessRequest) GrantsValidAt(now time.Time) bool {
	if r.Result != AccessRequestApproved {
		return false
	}
	if r.StartDate != nil && r.StartDate.After(now) {
		return false
	}
	return r.EndDate == nil || !r.EndDate.Before(now)
}
