package workflow

import (
	"github.com/davidahmann/proofofchoice/pkg/types"
)

type Command string

const (
	CmdCreate     Command = "create"
	CmdEdit       Command = "edit"
	CmdPublish    Command = "publish"
	CmdOpenReview Command = "open_review"
	CmdSelect     Command = "select"
	CmdApprove    Command = "approve"
	CmdReject     Command = "reject"
	CmdRevise     Command = "revise"
	CmdArchive    Command = "archive"
	CmdEscalate   Command = "escalate"
	CmdComment    Command = "comment"
)

var AllCommands = []Command{
	CmdCreate, CmdEdit, CmdPublish, CmdOpenReview, CmdSelect, CmdApprove,
	CmdReject, CmdRevise, CmdArchive, CmdEscalate, CmdComment,
}

func (c Command) Valid() bool {
	for _, known := range AllCommands {
		if c == known {
			return true
		}
	}
	return false
}

// Next returns the status a decision moves to when cmd runs from status.
// Commands that do not change status return status unchanged. Illegal
// combinations return an InvalidStateError and never a partial answer.
func Next(status types.DecisionStatus, cmd Command) (types.DecisionStatus, error) {
	switch cmd {
	case CmdPublish:
		if status == types.StatusDraft {
			return types.StatusPublished, nil
		}
	case CmdOpenReview:
		if status == types.StatusPublished {
			return types.StatusPending, nil
		}
	case CmdApprove:
		switch status {
		case types.StatusPending:
			return types.StatusApproved, nil
		case types.StatusApproved:
			return status, NewInvalidStateError("already_approved", "decision already approved")
		}
	case CmdReject:
		switch status {
		case types.StatusPending:
			return types.StatusRejected, nil
		case types.StatusRejected:
			return status, NewInvalidStateError("already_rejected", "decision already rejected")
		}
	case CmdRevise:
		if status == types.StatusRejected {
			return types.StatusDraft, nil
		}
	case CmdArchive:
		switch status {
		case types.StatusApproved, types.StatusRejected, types.StatusArchived:
			return types.StatusArchived, nil
		}
	case CmdSelect:
		if status == types.StatusPending {
			return status, nil
		}
		return status, NewInvalidStateError("select_requires_pending", "options can only be selected while the decision is pending (status %s)", status)
	case CmdEdit:
		if Editable(status) {
			return status, nil
		}
		return status, NewInvalidStateError("decision_locked", "decision is %s and can no longer be edited", status)
	case CmdEscalate:
		switch status {
		case types.StatusPublished, types.StatusPending:
			return status, nil
		}
	case CmdComment:
		if status.Valid() {
			return status, nil
		}
	}
	return status, NewInvalidStateError("illegal_transition", "cannot %s a decision in status %s", cmd, status)
}

// Editable reports whether options and metadata may still change.
func Editable(status types.DecisionStatus) bool {
	switch status {
	case types.StatusDraft, types.StatusPublished, types.StatusPending, types.StatusRejected:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status change is possible.
func Terminal(status types.DecisionStatus) bool {
	return status == types.StatusArchived
}
