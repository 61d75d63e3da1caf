package permissions

import "github.com/vngrid/caseguard/internal/models"

// CaseView is the canonical read permission. Access requests grant it by
// default, and the temporary-access fallback applies to it alone.
const CaseView = "case.view"

// CaseHandleAccess gates handling of access requests for a case.
const CaseHandleAccess = "case.handle-access"

func init() {
	perms := []*Permission{
		{
			Name:        CaseView,
			ObjectType:  models.ObjectTypeCase,
			Description: "View cases and case files",
		},
		{
			Name:        "case.download-documents",
			ObjectType:  models.ObjectTypeCase,
			Description: "View case documents including binary content",
		},
		{
			Name:        "case.set-status",
			ObjectType:  models.ObjectTypeCase,
			Description: "Set new statuses on cases",
		},
		{
			Name:        "case.set-result",
			ObjectType:  models.ObjectTypeCase,
			Description: "Set the result on cases",
		},
		{
			Name:        "case.close",
			ObjectType:  models.ObjectTypeCase,
			Description: "Close cases once a result has been set",
		},
		{
			Name:        CaseHandleAccess,
			ObjectType:  models.ObjectTypeCase,
			Description: "Handle access requests for cases",
		},
		{
			Name:        "document.view",
			ObjectType:  models.ObjectTypeDocument,
			Description: "View document metadata and content",
		},
		{
			Name:        "report.view",
			ObjectType:  models.ObjectTypeReport,
			Description: "View management reports",
		},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}
