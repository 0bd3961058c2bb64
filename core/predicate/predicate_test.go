package predicate

import (
	"testing"

	"github.com/superego-run/superego/core/request"
)

func mustReq(t *testing.T, toolName string, params map[string]any) *request.ToolRequest {
	t.Helper()
	r, err := request.Normalize(request.Raw{
		ToolName:   toolName,
		AgentID:    "agent",
		SessionID:  "session",
		Cwd:        "/home/alice",
		Parameters: params,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return r
}

func TestFieldMatchOperators(t *testing.T) {
	req := mustReq(t, "Write", map[string]any{"file_path": "/etc/shadow", "size": 42.0})

	cases := []struct {
		name string
		node Node
		want bool
	}{
		{"equals match", Node{FieldMatch: &FieldMatch{Field: "tool_name", Op: Equals, Value: "Write"}}, true},
		{"equals mismatch", Node{FieldMatch: &FieldMatch{Field: "tool_name", Op: Equals, Value: "Read"}}, false},
		{"not_equals present field true", Node{FieldMatch: &FieldMatch{Field: "tool_name", Op: NotEquals, Value: "Read"}}, true},
		{"not_equals missing field always true", Node{FieldMatch: &FieldMatch{Field: "parameters.missing", Op: NotEquals, Value: "x"}}, true},
		{"equals missing field false", Node{FieldMatch: &FieldMatch{Field: "parameters.missing", Op: Equals, Value: "x"}}, false},
		{"starts_with", Node{FieldMatch: &FieldMatch{Field: "parameters.file_path", Op: StartsWith, Value: "/etc"}}, true},
		{"contains", Node{FieldMatch: &FieldMatch{Field: "parameters.file_path", Op: Contains, Value: "shadow"}}, true},
		{"ends_with false", Node{FieldMatch: &FieldMatch{Field: "parameters.file_path", Op: EndsWith, Value: ".txt"}}, false},
		{"in list", Node{FieldMatch: &FieldMatch{Field: "tool_name", Op: In, Value: []any{"Read", "Write"}}}, true},
		{"gt numeric", Node{FieldMatch: &FieldMatch{Field: "parameters.size", Op: Gt, Value: 10.0}}, true},
		{"lt numeric false", Node{FieldMatch: &FieldMatch{Field: "parameters.size", Op: Lt, Value: 10.0}}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if err := c.node.Compile(); err != nil {
				t.Fatalf("compile: %v", err)
			}
			if got := Evaluate(&c.node, req); got != c.want {
				t.Errorf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestMatchesUsesPrecompiledRegex(t *testing.T) {
	req := mustReq(t, "Read", map[string]any{"file_path": "/home/alice/notes.md"})
	n := Node{FieldMatch: &FieldMatch{Field: "parameters.file_path", Op: Matches, Value: `^/home/.*\.md$`}}
	if err := n.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if n.FieldMatch.compiled == nil {
		t.Fatalf("expected regex cached after Compile")
	}
	if !Evaluate(&n, req) {
		t.Errorf("expected match")
	}
}

func TestMatchesIsAnchored(t *testing.T) {
	req := mustReq(t, "Reader", nil)
	n := Node{FieldMatch: &FieldMatch{Field: "tool_name", Op: Matches, Value: "Read"}}
	if err := n.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if Evaluate(&n, req) {
		t.Errorf("expected anchored regex not to match a superstring of the pattern")
	}
}

func TestCompileFailsOnBadRegex(t *testing.T) {
	n := Node{FieldMatch: &FieldMatch{Field: "tool_name", Op: Matches, Value: "("}}
	if err := n.Compile(); err == nil {
		t.Fatalf("expected compile error for invalid regex")
	}
}

func TestCompositeNodes(t *testing.T) {
	req := mustReq(t, "Read", map[string]any{"file_path": "/home/alice/notes.md"})

	allOf := Node{AllOf: []Node{
		{FieldMatch: &FieldMatch{Field: "tool_name", Op: Equals, Value: "Read"}},
		{FieldMatch: &FieldMatch{Field: "parameters.file_path", Op: StartsWith, Value: "/home/"}},
	}}
	if err := allOf.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Evaluate(&allOf, req) {
		t.Errorf("expected all_of to match")
	}

	notNode := Node{Not: &Node{FieldMatch: &FieldMatch{Field: "tool_name", Op: Equals, Value: "Write"}}}
	if err := notNode.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Evaluate(&notNode, req) {
		t.Errorf("expected not(tool_name==Write) to be true for a Read request")
	}

	anyOf := Node{AnyOf: []Node{
		{FieldMatch: &FieldMatch{Field: "tool_name", Op: Equals, Value: "Write"}},
		{FieldMatch: &FieldMatch{Field: "tool_name", Op: Equals, Value: "Read"}},
	}}
	if err := anyOf.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !Evaluate(&anyOf, req) {
		t.Errorf("expected any_of to match")
	}
}
