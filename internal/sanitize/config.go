package sanitize

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleDef is the YAML shape of an operator-defined sanitization rule.
type RuleDef struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

type ruleFile struct {
	Rules []RuleDef `yaml:"sanitization_patterns"`
}

// LoadRules reads rule definitions from a YAML file and compiles them.
// A missing file is not an error: the default rule set applies.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, fmt.Errorf("read sanitization rules: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sanitization rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return DefaultRules(), nil
	}
	return CompileRules(f.Rules)
}

// CompileRules validates and compiles rule definitions in order.
func CompileRules(defs []RuleDef) ([]Rule, error) {
	rules := make([]Rule, 0, len(defs))
	for i, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("sanitization_patterns[%d]: name is required", i)
		}
		if def.Pattern == "" {
			return nil, fmt.Errorf("sanitization_patterns[%d]: pattern is required", i)
		}
		re, err := regexp.Compile(def.Pattern)
		if err != nil {
			return nil, fmt.Errorf("sanitization_patterns[%d] %q: %w", i, def.Name, err)
		}
		rules = append(rules, Rule{Name: def.Name, Pattern: re, Replacement: def.Replacement})
	}
	return rules, nil
}
