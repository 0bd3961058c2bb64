// Package predicate evaluates a rule's condition tree against a
// ToolRequest: field matches, composite all_of/any_of/not nodes, and the
// parameters-shorthand desugaring.
package predicate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/superego-run/superego/core/request"
)

// Op is a field-match operator.
type Op string

const (
	Equals     Op = "equals"
	NotEquals  Op = "not_equals"
	Matches    Op = "matches"
	Contains   Op = "contains"
	StartsWith Op = "starts_with"
	EndsWith   Op = "ends_with"
	In         Op = "in"
	Gt         Op = "gt"
	Lt         Op = "lt"
)

// FieldMatch is a leaf condition: does req.Field satisfy Op against Value.
type FieldMatch struct {
	Field string
	Op    Op
	Value any

	// compiled holds the pre-compiled regex for Op == Matches. Populated
	// by Compile at load time; Evaluate never compiles on the hot path.
	compiled *regexp.Regexp
}

// Node is one element of the condition tree. Exactly one of FieldMatch,
// AllOf, AnyOf, or Not is set.
type Node struct {
	FieldMatch *FieldMatch
	AllOf      []Node
	AnyOf      []Node
	Not        *Node
}

// Compile pre-compiles any regex literals in the tree, caching them on
// their FieldMatch nodes. Called once at rule-load time; a compile failure
// here fails the whole load.
func (n *Node) Compile() error {
	if n == nil {
		return nil
	}
	if n.FieldMatch != nil {
		return n.FieldMatch.compile()
	}
	for i := range n.AllOf {
		if err := n.AllOf[i].Compile(); err != nil {
			return err
		}
	}
	for i := range n.AnyOf {
		if err := n.AnyOf[i].Compile(); err != nil {
			return err
		}
	}
	return n.Not.Compile()
}

func (m *FieldMatch) compile() error {
	if m.Op != Matches {
		return nil
	}
	pattern, ok := m.Value.(string)
	if !ok {
		return fmt.Errorf("matches operator on field %q requires a string pattern", m.Field)
	}
	// matches is documented as an anchored regex: the whole field value
	// must match, not just a substring of it.
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return fmt.Errorf("compiling regex for field %q: %w", m.Field, err)
	}
	m.compiled = re
	return nil
}

// Evaluate returns whether req satisfies the condition tree.
func Evaluate(n *Node, req *request.ToolRequest) bool {
	if n == nil {
		return false
	}
	switch {
	case n.FieldMatch != nil:
		return n.FieldMatch.evaluate(req)
	case n.AllOf != nil:
		for i := range n.AllOf {
			if !Evaluate(&n.AllOf[i], req) {
				return false
			}
		}
		return true
	case n.AnyOf != nil:
		for i := range n.AnyOf {
			if Evaluate(&n.AnyOf[i], req) {
				return true
			}
		}
		return false
	case n.Not != nil:
		return !Evaluate(n.Not, req)
	default:
		return false
	}
}

func (m *FieldMatch) evaluate(req *request.ToolRequest) bool {
	value, present := resolveField(req, m.Field)
	if !present {
		// Documented exception: not_equals on a missing field is true.
		return m.Op == NotEquals
	}

	switch m.Op {
	case Equals:
		return fmt.Sprint(value) == fmt.Sprint(m.Value)
	case NotEquals:
		return fmt.Sprint(value) != fmt.Sprint(m.Value)
	case Matches:
		if m.compiled == nil {
			return false
		}
		return m.compiled.MatchString(fmt.Sprint(value))
	case Contains:
		return strings.Contains(fmt.Sprint(value), fmt.Sprint(m.Value))
	case StartsWith:
		return strings.HasPrefix(fmt.Sprint(value), fmt.Sprint(m.Value))
	case EndsWith:
		return strings.HasSuffix(fmt.Sprint(value), fmt.Sprint(m.Value))
	case In:
		return inList(value, m.Value)
	case Gt:
		a, aok := toFloat(value)
		b, bok := toFloat(m.Value)
		return aok && bok && a > b
	case Lt:
		a, aok := toFloat(value)
		b, bok := toFloat(m.Value)
		return aok && bok && a < b
	default:
		return false
	}
}

func inList(value, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return false
	}
	want := fmt.Sprint(value)
	for _, item := range items {
		if fmt.Sprint(item) == want {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// resolveField looks up field on req. field is one of tool_name, cwd,
// agent_id, session_id, or parameters.<dotted.path>.
func resolveField(req *request.ToolRequest, field string) (any, bool) {
	switch field {
	case "tool_name":
		return req.ToolName, true
	case "cwd":
		return req.Cwd, true
	case "agent_id":
		return req.AgentID, true
	case "session_id":
		return req.SessionID, true
	}
	const prefix = "parameters."
	if !strings.HasPrefix(field, prefix) {
		return nil, false
	}
	path := strings.Split(strings.TrimPrefix(field, prefix), ".")
	var cur any = req.Parameters
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}
