// Package catalog maintains the option set of a decision.
package catalog

import (
	"strings"

	"github.com/davidahmann/proofofchoice/internal/workflow"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

const (
	RuleTitleRequired  = "option_title_required"
	RuleDuplicateID    = "option_id_duplicate"
	RuleSelectedOption = "option_is_selected"
)

// AddOption appends opt. A recommended option clears the flag on every other option.
func AddOption(d *types.Decision, opt types.DecisionOption) error {
	if _, err := workflow.Next(d.Status, workflow.CmdEdit); err != nil {
		return err
	}
	if err := validateOption(opt); err != nil {
		return err
	}
	if _, exists := d.Option(opt.ID); exists {
		return workflow.NewValidationError(RuleDuplicateID, "option %s already exists", opt.ID)
	}

	d.Options = append(d.Options, opt.Clone())
	if opt.IsRecommended {
		setRecommended(d, opt.ID)
	}
	return nil
}

// UpdateOption replaces the option with the same id.
func UpdateOption(d *types.Decision, opt types.DecisionOption) error {
	if _, err := workflow.Next(d.Status, workflow.CmdEdit); err != nil {
		return err
	}
	if err := validateOption(opt); err != nil {
		return err
	}
	idx := indexOf(d.Options, opt.ID)
	if idx < 0 {
		return workflow.NewNotFoundError("option %s not found", opt.ID)
	}

	d.Options[idx] = opt.Clone()
	if opt.IsRecommended {
		setRecommended(d, opt.ID)
	}
	return nil
}

// RemoveOption drops an option. A published or pending decision keeps at least one.
func RemoveOption(d *types.Decision, optionID string) error {
	if _, err := workflow.Next(d.Status, workflow.CmdEdit); err != nil {
		return err
	}
	idx := indexOf(d.Options, optionID)
	if idx < 0 {
		return workflow.NewNotFoundError("option %s not found", optionID)
	}
	if d.SelectedOptionID == optionID {
		return workflow.NewValidationError(RuleSelectedOption, "option %s is currently selected and cannot be removed", optionID)
	}
	if len(d.Options) == 1 && (d.Status == types.StatusPublished || d.Status == types.StatusPending) {
		return workflow.NewValidationError(workflow.RuleNoOptions, "cannot remove the last option of a %s decision", d.Status)
	}

	d.Options = append(d.Options[:idx:idx], d.Options[idx+1:]...)
	return nil
}

// SelectOption records the client's pick. Only legal while pending.
func SelectOption(d *types.Decision, optionID string) error {
	if _, err := workflow.Next(d.Status, workflow.CmdSelect); err != nil {
		return err
	}
	if indexOf(d.Options, optionID) < 0 {
		return workflow.NewNotFoundError("option %s not found", optionID)
	}
	d.SelectedOptionID = optionID
	return nil
}

// Recommended returns the single recommended option, if any.
func Recommended(options []types.DecisionOption) (types.DecisionOption, bool) {
	for _, opt := range options {
		if opt.IsRecommended {
			return opt, true
		}
	}
	return types.DecisionOption{}, false
}

func setRecommended(d *types.Decision, optionID string) {
	for i := range d.Options {
		d.Options[i].IsRecommended = d.Options[i].ID == optionID
	}
}

func validateOption(opt types.DecisionOption) error {
	if strings.TrimSpace(opt.ID) == "" {
		return workflow.NewValidationError("option_id_required", "option id is required")
	}
	if strings.TrimSpace(opt.Title) == "" {
		return workflow.NewValidationError(RuleTitleRequired, "option title is required")
	}
	return nil
}

func indexOf(options []types.DecisionOption, optionID string) int {
	for i, opt := range options {
		if opt.ID == optionID {
			return i
		}
	}
	return -1
}
