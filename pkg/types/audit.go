package types

import "time"

type AuditAction string

const (
	ActionCreated        AuditAction = "created"
	ActionUpdated        AuditAction = "updated"
	ActionPublished      AuditAction = "published"
	ActionApproved       AuditAction = "approved"
	ActionRejected       AuditAction = "rejected"
	ActionSigned         AuditAction = "signed"
	ActionCommented      AuditAction = "commented"
	ActionVersionCreated AuditAction = "version_created"
	ActionOptionAdded    AuditAction = "option_added"
	ActionEscalated      AuditAction = "escalated"
	ActionArchived       AuditAction = "archived"
)

func (a AuditAction) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionPublished, ActionApproved, ActionRejected,
		ActionSigned, ActionCommented, ActionVersionCreated, ActionOptionAdded,
		ActionEscalated, ActionArchived:
		return true
	default:
		return false
	}
}

// AuditEntry is one link in a decision's hash-chained proof-of-choice ledger.
// Seq is 1-based and strictly increasing per decision.
type AuditEntry struct {
	ID         string            `json:"id"`
	DecisionID string            `json:"decisionId"`
	Seq        int64             `json:"seq"`
	Action     AuditAction       `json:"action"`
	Actor      Actor             `json:"actor"`
	Timestamp  time.Time         `json:"timestamp"`
	IP         string            `json:"ip,omitempty"`
	Details    string            `json:"details,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	PrevHash   string            `json:"prevHash"`
	Hash       string            `json:"hash"`
}
