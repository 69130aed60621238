package policy

import (
	"github.com/davidahmann/proofofchoice/internal/workflow"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

// Policy decides which roles may run which workflow commands.
type Policy struct {
	PolicyID      string         `yaml:"policy_id"`
	PolicyVersion string         `yaml:"policy_version"`
	Defaults      PolicyDefaults `yaml:"defaults"`
	Rules         []PolicyRule   `yaml:"rules"`
}

type PolicyDefaults struct {
	Allow                 bool `yaml:"allow"`
	RequireRecommendation bool `yaml:"require_recommendation"`
}

type PolicyRule struct {
	ID     string       `yaml:"id"`
	Match  PolicyMatch  `yaml:"match"`
	Effect PolicyEffect `yaml:"effect"`
}

// PolicyMatch fields are ORed within a list and ANDed across lists; an empty list matches anything.
type PolicyMatch struct {
	Commands   []workflow.Command `yaml:"commands"`
	Roles      []types.Role       `yaml:"roles"`
	Categories []string           `yaml:"categories"`
}

type PolicyEffect struct {
	Allow                 *bool  `yaml:"allow"`
	RequireRecommendation *bool  `yaml:"require_recommendation"`
	Reason                string `yaml:"reason"`
}
