package predicate

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawNode mirrors the YAML shape of a condition node before it is
// resolved into a Node tree.
type rawNode struct {
	Field string    `yaml:"field"`
	Op    string    `yaml:"op"`
	Value any       `yaml:"value"`
	AllOf []rawNode `yaml:"all_of"`
	AnyOf []rawNode `yaml:"any_of"`
	Not   *rawNode  `yaml:"not"`

	// Parameters is the shape shorthand: { parameters: { key: match } }.
	Parameters map[string]any `yaml:"parameters"`
}

// UnmarshalYAML implements yaml.Unmarshaler, decoding the tagged condition
// tree described in the rule file format into a Node.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	var raw rawNode
	if err := value.Decode(&raw); err != nil {
		return err
	}
	built, err := raw.toNode()
	if err != nil {
		return err
	}
	*n = built
	return nil
}

func (r rawNode) toNode() (Node, error) {
	switch {
	case r.Field != "":
		return Node{FieldMatch: &FieldMatch{Field: r.Field, Op: Op(r.Op), Value: r.Value}}, nil
	case r.AllOf != nil:
		nodes, err := rawSliceToNodes(r.AllOf)
		if err != nil {
			return Node{}, err
		}
		return Node{AllOf: nodes}, nil
	case r.AnyOf != nil:
		nodes, err := rawSliceToNodes(r.AnyOf)
		if err != nil {
			return Node{}, err
		}
		return Node{AnyOf: nodes}, nil
	case r.Not != nil:
		inner, err := r.Not.toNode()
		if err != nil {
			return Node{}, err
		}
		return Node{Not: &inner}, nil
	case r.Parameters != nil:
		return desugarParameters(r.Parameters)
	default:
		return Node{}, fmt.Errorf("condition node has no recognized shape (field/all_of/any_of/not/parameters)")
	}
}

func rawSliceToNodes(raw []rawNode) ([]Node, error) {
	nodes := make([]Node, len(raw))
	for i, r := range raw {
		n, err := r.toNode()
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

// desugarParameters expands { parameters: { key: match, ... } } into an
// all_of of field matches against parameters.<key>. A scalar match value
// desugars to an equals comparison; a map with op/value desugars to that
// operator; a nested map desugars to a deeper dotted path.
func desugarParameters(params map[string]any) (Node, error) {
	var nodes []Node
	for key, match := range params {
		fm, err := desugarOne("parameters."+key, match)
		if err != nil {
			return Node{}, err
		}
		nodes = append(nodes, fm)
	}
	return Node{AllOf: nodes}, nil
}

func desugarOne(field string, match any) (Node, error) {
	m, ok := match.(map[string]any)
	if !ok {
		return Node{FieldMatch: &FieldMatch{Field: field, Op: Equals, Value: match}}, nil
	}
	if op, hasOp := m["op"]; hasOp {
		opStr, ok := op.(string)
		if !ok {
			return Node{}, fmt.Errorf("parameters.%s: op must be a string", field)
		}
		return Node{FieldMatch: &FieldMatch{Field: field, Op: Op(opStr), Value: m["value"]}}, nil
	}
	// Nested mapping: recurse one level deeper per key.
	var nodes []Node
	for key, nested := range m {
		fm, err := desugarOne(field+"."+key, nested)
		if err != nil {
			return Node{}, err
		}
		nodes = append(nodes, fm)
	}
	return Node{AllOf: nodes}, nil
}
