package audit

import "github.com/davidahmann/proofofchoice/pkg/types"

var labels = map[types.AuditAction]string{
	types.ActionCreated:        "Created",
	types.ActionUpdated:        "Updated",
	types.ActionPublished:      "Published",
	types.ActionApproved:       "Approved",
	types.ActionRejected:       "Rejected",
	types.ActionSigned:         "Signed",
	types.ActionCommented:      "Commented",
	types.ActionVersionCreated: "New Version",
	types.ActionOptionAdded:    "Option Added",
	types.ActionEscalated:      "Escalated",
	types.ActionArchived:       "Archived",
}

// Label is the display name of an action. Unknown actions render as-is.
func Label(action types.AuditAction) string {
	if label, ok := labels[action]; ok {
		return label
	}
	return string(action)
}
