package policy

import (
	"slices"

	"github.com/davidahmann/proofofchoice/internal/workflow"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

type Input struct {
	Command  workflow.Command
	Role     types.Role
	Category string
}

type Decision struct {
	Allowed               bool
	RequireRecommendation bool
	Reason                string
	MatchedRuleID         string
	ReasonCodes           []string
	PolicyID              string
	PolicyVersion         string
	PolicyHash            string
}

// Evaluate applies the first matching rule to input, otherwise defaults.
func Evaluate(p Policy, policyHash string, input Input) Decision {
	decision := Decision{
		Allowed:               p.Defaults.Allow,
		RequireRecommendation: p.Defaults.RequireRecommendation,
		PolicyID:              p.PolicyID,
		PolicyVersion:         p.PolicyVersion,
		PolicyHash:            policyHash,
	}

	for _, rule := range p.Rules {
		if !matchRule(rule.Match, input) {
			continue
		}

		decision.MatchedRuleID = rule.ID
		decision.ReasonCodes = append(decision.ReasonCodes, "POLICY_MATCH:"+rule.ID)

		if rule.Effect.Allow != nil {
			decision.Allowed = *rule.Effect.Allow
		}
		if rule.Effect.RequireRecommendation != nil {
			decision.RequireRecommendation = *rule.Effect.RequireRecommendation
		}
		if rule.Effect.Reason != "" {
			decision.Reason = rule.Effect.Reason
		}
		return decision
	}

	decision.ReasonCodes = append(decision.ReasonCodes, "POLICY_DEFAULT")
	return decision
}

// Evaluate runs the loaded policy, stamping its hash into the result.
func (l LoadedPolicy) Evaluate(input Input) Decision {
	return Evaluate(l.Policy, l.Hash, input)
}

func matchRule(match PolicyMatch, input Input) bool {
	if len(match.Commands) > 0 && !slices.Contains(match.Commands, input.Command) {
		return false
	}
	if len(match.Roles) > 0 && !slices.Contains(match.Roles, input.Role) {
		return false
	}
	if len(match.Categories) > 0 && !slices.Contains(match.Categories, input.Category) {
		return false
	}
	return true
}
