package grade

import (
	"sort"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

type Result struct {
	Grade   string   `json:"grade"`
	Reasons []string `json:"reasons"`
}

// Input summarises the evidence gathered for one decision.
type Input struct {
	Status             types.DecisionStatus
	ChainValid         bool
	HasSignature       bool
	SignatureValid     bool
	PolicyHash         string
	VersionsContiguous bool
}

// Evaluate grades how strong the proof of choice is.
func Evaluate(in Input) Result {
	missing := map[string]bool{}

	if !in.ChainValid {
		missing["audit_chain"] = true
	}

	approved := in.Status == types.StatusApproved || (in.Status == types.StatusArchived && in.HasSignature)
	if approved && !in.HasSignature {
		missing["signature"] = true
	}
	if in.HasSignature && !in.SignatureValid {
		missing["valid_signature"] = true
	}
	if in.PolicyHash == "" {
		missing["policy_hash"] = true
	}
	if !in.VersionsContiguous {
		missing["version_history"] = true
	}
	if !approved {
		missing["approval"] = true
	}

	grade := "A"
	switch {
	case missing["audit_chain"] || missing["signature"] || missing["valid_signature"]:
		grade = "F"
	case missing["version_history"]:
		grade = "D"
	case missing["policy_hash"]:
		grade = "C"
	case missing["approval"]:
		grade = "B"
	}

	reasons := []string{}
	for k, v := range missing {
		if v {
			reasons = append(reasons, "missing_"+k)
		}
	}
	sort.Strings(reasons)

	return Result{Grade: grade, Reasons: reasons}
}
