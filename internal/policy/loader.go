package policy

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/proofofchoice/internal/crypto"
)

//go:embed default.yaml
var defaultPolicyYAML []byte

type LoadedPolicy struct {
	Policy Policy
	Hash   string
	Bytes  []byte
}

// LoadPolicy loads a YAML policy and computes its hash from raw bytes.
func LoadPolicy(path string) (LoadedPolicy, error) {
	// #nosec G304 -- path comes from operator-configured policy path.
	data, err := os.ReadFile(path)
	if err != nil {
		return LoadedPolicy{}, err
	}
	return Parse(data)
}

// Default returns the built-in policy used when no policy_path is configured.
func Default() LoadedPolicy {
	loaded, err := Parse(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded policy invalid: %v", err))
	}
	return loaded
}

func Parse(data []byte) (LoadedPolicy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return LoadedPolicy{}, err
	}
	if err := p.Validate(); err != nil {
		return LoadedPolicy{}, err
	}

	return LoadedPolicy{
		Policy: p,
		Hash:   crypto.DigestWithPrefix(data),
		Bytes:  data,
	}, nil
}

func (p Policy) Validate() error {
	if p.PolicyID == "" {
		return fmt.Errorf("policy_id is required")
	}
	for _, rule := range p.Rules {
		if rule.ID == "" {
			return fmt.Errorf("policy rule without id")
		}
		for _, cmd := range rule.Match.Commands {
			if !cmd.Valid() {
				return fmt.Errorf("rule %s: unknown command %q", rule.ID, cmd)
			}
		}
		for _, role := range rule.Match.Roles {
			if !role.Valid() {
				return fmt.Errorf("rule %s: unknown role %q", rule.ID, role)
			}
		}
	}
	return nil
}
