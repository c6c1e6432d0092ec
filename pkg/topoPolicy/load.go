package topoPolicy

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads the policy tables from a YAML file
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read policy file")
	}

	return Parse(data)
}

// Parse decodes and validates policy tables
func Parse(data []byte) (*Policy, error) {
	p := new(Policy)

	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, errors.Wrap(err, "could not parse policy")
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	p.compile()

	return p, nil
}

// Validate checks the tables for entries that can never be applied
func (p *Policy) Validate() error {
	for i, pair := range p.Pairs {
		if pair.Src == "" || pair.Dst == "" {
			return errors.Errorf("pair %d: empty class", i)
		}
	}

	for i, rule := range p.Denials {
		if rule.Reason == "" {
			return errors.Errorf("denial %d: empty reason", i)
		}
		if err := checkClasses(rule.Src, rule.Dst); err != nil {
			return errors.Wrapf(err, "denial %d", i)
		}
	}

	if p.DefaultDeny == "" {
		return errors.New("defaultDeny must be set")
	}

	for i, rule := range p.Egress {
		if len(rule.InPorts) == 0 {
			return errors.Errorf("egress rule %d: no ingress port", i)
		}
		if len(rule.OutPorts) == 0 && rule.Deny == "" {
			return errors.Errorf("egress rule %d: needs outPorts or deny", i)
		}
		if len(rule.OutPorts) != 0 && rule.Deny != "" {
			return errors.Errorf("egress rule %d: outPorts and deny are exclusive", i)
		}
		for _, port := range rule.OutPorts {
			if port == 0 {
				return errors.Errorf("egress rule %d: port 0 is not a valid output", i)
			}
		}
		if err := checkClasses(rule.Src, rule.Dst); err != nil {
			return errors.Wrapf(err, "egress rule %d", i)
		}
	}

	return nil
}

func checkClasses(lists ...[]Class) error {
	for _, list := range lists {
		for _, c := range list {
			if len(c) != 1 {
				return errors.Errorf("class %q must be a single character", string(c))
			}
		}
	}

	return nil
}
