package workflow

import (
	"strings"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

// Guard rules surfaced to callers.
const (
	RuleNoOptions              = "no_options"
	RuleRecommendationRequired = "recommendation_required"
	RuleNoOptionSelected       = "no_option_selected"
	RuleSelectedOptionMissing  = "selected_option_missing"
	RuleSignerRequired         = "signer_required"
	RuleReasonRequired         = "reason_required"
)

func CheckPublish(d types.Decision) error {
	if len(d.Options) == 0 {
		return NewValidationError(RuleNoOptions, "no options present: add at least one option before publishing")
	}
	return nil
}

func CheckOpenReview(d types.Decision, requireRecommendation bool) error {
	if len(d.Options) == 0 {
		return NewValidationError(RuleNoOptions, "no options present: add at least one option before client review")
	}
	if !requireRecommendation {
		return nil
	}
	for _, opt := range d.Options {
		if opt.IsRecommended {
			return nil
		}
	}
	return NewValidationError(RuleRecommendationRequired, "mark a recommended option before opening client review")
}

func CheckApprove(d types.Decision, signerName string) error {
	if d.SelectedOptionID == "" {
		return NewValidationError(RuleNoOptionSelected, "no option selected: select an option before approving")
	}
	if _, ok := d.Option(d.SelectedOptionID); !ok {
		return NewValidationError(RuleSelectedOptionMissing, "selected option %s is not part of this decision", d.SelectedOptionID)
	}
	if strings.TrimSpace(signerName) == "" {
		return NewValidationError(RuleSignerRequired, "type your full name to sign")
	}
	return nil
}

func CheckReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return NewValidationError(RuleReasonRequired, "a reason is required")
	}
	return nil
}
