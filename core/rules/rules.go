// Package rules implements the typed in-memory rule store: SecurityRule,
// the ordered RuleSet, and the YAML loader that builds one.
package rules

import (
	"sort"

	"github.com/superego-run/superego/core/predicate"
)

// Action is the verdict a matched rule produces.
type Action string

const (
	Allow  Action = "allow"
	Deny   Action = "deny"
	Sample Action = "sample"
)

// SecurityRule is immutable once loaded into a RuleSet.
type SecurityRule struct {
	ID             string
	Priority       int
	Conditions     predicate.Node
	Action         Action
	Reason         string
	SampleGuidance string

	// loadOrder breaks priority ties: the earlier-loaded rule wins.
	loadOrder int
}

// LoadOrder returns the rule's position in its load sequence, used only to
// break priority ties.
func (r SecurityRule) LoadOrder() int { return r.loadOrder }

// RuleSet is an ordered, immutable snapshot of the loaded rules, sorted by
// (priority asc, load_order asc).
type RuleSet struct {
	rules []SecurityRule
	byID  map[string]int
}

// NewRuleSet builds a RuleSet from rules in their load order, assigning
// load-order indices and sorting by (priority, load_order).
func NewRuleSet(rs []SecurityRule) *RuleSet {
	sorted := make([]SecurityRule, len(rs))
	for i, r := range rs {
		r.loadOrder = i
		sorted[i] = r
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].loadOrder < sorted[j].loadOrder
	})

	byID := make(map[string]int, len(sorted))
	for i, r := range sorted {
		byID[r.ID] = i
	}
	return &RuleSet{rules: sorted, byID: byID}
}

// Rules returns the rules in evaluation order. The returned slice must not
// be mutated by callers.
func (s *RuleSet) Rules() []SecurityRule {
	if s == nil {
		return nil
	}
	return s.rules
}

// ByID returns the rule with the given id, if present.
func (s *RuleSet) ByID(id string) (SecurityRule, bool) {
	if s == nil {
		return SecurityRule{}, false
	}
	i, ok := s.byID[id]
	if !ok {
		return SecurityRule{}, false
	}
	return s.rules[i], true
}

// Len returns the number of rules in the set.
func (s *RuleSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}
