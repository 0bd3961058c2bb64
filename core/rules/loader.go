package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/superego-run/superego/core/predicate"
)

// ruleFile is the top-level YAML document shape: { rules: [...] }.
type ruleFile struct {
	Rules []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	ID             string         `yaml:"id"`
	Priority       int            `yaml:"priority"`
	Action         string         `yaml:"action"`
	Reason         string         `yaml:"reason"`
	SampleGuidance string         `yaml:"sample_guidance"`
	Conditions     predicate.Node `yaml:"conditions"`
}

// LoadFile parses a single rule file into a RuleSet. A failed parse or
// validation returns an error; it never mutates a previously loaded
// RuleSet (callers are responsible for retaining the prior snapshot).
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file %s: %w", path, err)
	}
	return parse(data, path)
}

// LoadDir parses every *.yaml/*.yml file in dir, in lexicographic order,
// and merges them into a single RuleSet. Rules loaded later append to the
// load order, which is the documented priority tie-break.
func LoadDir(dir string) (*RuleSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading rule directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)

	var all []SecurityRule
	seen := make(map[string]string)
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading rule file %s: %w", f, err)
		}
		set, err := parse(data, f)
		if err != nil {
			return nil, err
		}
		for _, r := range set.Rules() {
			if prev, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("duplicate rule id %q in %s (already defined in %s)", r.ID, f, prev)
			}
			seen[r.ID] = f
			all = append(all, r)
		}
	}
	return NewRuleSet(all), nil
}

func parse(data []byte, source string) (*RuleSet, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}

	seen := make(map[string]struct{}, len(doc.Rules))
	out := make([]SecurityRule, 0, len(doc.Rules))
	for _, d := range doc.Rules {
		r, err := validate(d)
		if err != nil {
			return nil, fmt.Errorf("%s: rule %q: %w", source, d.ID, err)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate rule id %q", source, r.ID)
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return NewRuleSet(out), nil
}

func validate(d ruleDoc) (SecurityRule, error) {
	if d.ID == "" {
		return SecurityRule{}, fmt.Errorf("id is required")
	}
	if d.Priority < 0 || d.Priority > 1000 {
		return SecurityRule{}, fmt.Errorf("priority %d out of range [0,1000]", d.Priority)
	}
	action := Action(d.Action)
	switch action {
	case Allow, Deny, Sample:
	default:
		return SecurityRule{}, fmt.Errorf("invalid action %q (want allow, deny, or sample)", d.Action)
	}
	if action != Allow && d.Reason == "" {
		return SecurityRule{}, fmt.Errorf("reason is required for action %q", action)
	}
	if err := d.Conditions.Compile(); err != nil {
		return SecurityRule{}, fmt.Errorf("conditions: %w", err)
	}

	return SecurityRule{
		ID:             d.ID,
		Priority:       d.Priority,
		Conditions:     d.Conditions,
		Action:         action,
		Reason:         d.Reason,
		SampleGuidance: d.SampleGuidance,
	}, nil
}
