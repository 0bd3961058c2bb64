package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/superego-run/superego/audit"
	"github.com/superego-run/superego/core/advisor"
	"github.com/superego-run/superego/core/request"
	"github.com/superego-run/superego/core/rules"
)

const scenarioRules = `
rules:
  - id: "deny-etc-shadow"
    priority: 10
    action: deny
    reason: "system password file"
    conditions:
      all_of:
        - { field: "tool_name", op: "in", value: ["Read","Edit"] }
        - { field: "parameters.file_path", op: "starts_with", value: "/etc/shadow" }
  - id: "sample-writes"
    priority: 100
    action: sample
    reason: "file writes need review"
    sample_guidance: "Assess whether content is benign."
    conditions:
      { field: "tool_name", op: "equals", value: "Write" }
  - id: "allow-safe-reads"
    priority: 900
    action: allow
    conditions:
      all_of:
        - { field: "tool_name", op: "equals", value: "Read" }
        - { field: "parameters.file_path", op: "starts_with", value: "/home/" }
`

func loadScenarioSet(t *testing.T) *rules.RuleSet {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(scenarioRules), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := rules.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	return set
}

func newTestRequest(t *testing.T, toolName string, params map[string]any) *request.ToolRequest {
	t.Helper()
	req, err := request.Normalize(request.Raw{
		ToolName:   toolName,
		Parameters: params,
		AgentID:    "agent-1",
		SessionID:  "session-1",
		Cwd:        "/home/alice",
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	return req
}

// TestEvaluateScenarios covers the six end-to-end scenarios from the
// decision engine's documented scenario table.
func TestEvaluateScenarios(t *testing.T) {
	set := loadScenarioSet(t)
	store := NewStaticStore(set)

	t.Run("scenario 1: deny /etc/shadow read", func(t *testing.T) {
		adv := advisor.New(&advisor.MockProvider{})
		eng := New(store, adv, audit.NewMemorySink())
		req := newTestRequest(t, "Read", map[string]any{"file_path": "/etc/shadow"})
		dec := eng.Evaluate(context.Background(), req)
		if dec.Action != "deny" || dec.RuleID != "deny-etc-shadow" {
			t.Fatalf("got %+v", dec)
		}
	})

	t.Run("scenario 2: allow safe home read", func(t *testing.T) {
		adv := advisor.New(&advisor.MockProvider{})
		eng := New(store, adv, audit.NewMemorySink())
		req := newTestRequest(t, "Read", map[string]any{"file_path": "/home/alice/notes.md"})
		dec := eng.Evaluate(context.Background(), req)
		if dec.Action != "allow" || dec.RuleID != "allow-safe-reads" {
			t.Fatalf("got %+v", dec)
		}
	})

	t.Run("scenario 3: sample write allowed by advisor", func(t *testing.T) {
		adv := advisor.New(&advisor.MockProvider{})
		eng := New(store, adv, audit.NewMemorySink())
		req := newTestRequest(t, "Write", map[string]any{"file_path": "/tmp/out.txt", "content": "ok"})
		dec := eng.Evaluate(context.Background(), req)
		if dec.Action != "allow" || dec.RuleID != "sample-writes" {
			t.Fatalf("got %+v", dec)
		}
	})

	t.Run("scenario 4: sample write denied by advisor", func(t *testing.T) {
		adv := advisor.New(&advisor.MockProvider{})
		eng := New(store, adv, audit.NewMemorySink())
		req := newTestRequest(t, "Write", map[string]any{"file_path": "/tmp/rm.sh", "content": "rm -rf /"})
		dec := eng.Evaluate(context.Background(), req)
		if dec.Action != "deny" || dec.RuleID != "sample-writes" {
			t.Fatalf("got %+v", dec)
		}
	})

	t.Run("scenario 5: no matching rule fails closed", func(t *testing.T) {
		adv := advisor.New(&advisor.MockProvider{})
		eng := New(store, adv, audit.NewMemorySink())
		req := newTestRequest(t, "Bash", map[string]any{"command": "ls"})
		dec := eng.Evaluate(context.Background(), req)
		if dec.Action != "deny" || dec.RuleID != "" {
			t.Fatalf("got %+v", dec)
		}
	})

	t.Run("scenario 6: advisor unreachable fails closed", func(t *testing.T) {
		unreachable := &unreachableProvider{}
		adv := advisor.New(unreachable, advisor.WithMaxRetries(0), advisor.WithFailMode(advisor.FailDeny))
		eng := New(store, adv, audit.NewMemorySink())
		req := newTestRequest(t, "Write", map[string]any{"file_path": "/tmp/anything", "content": "whatever"})
		dec := eng.Evaluate(context.Background(), req)
		if dec.Action != "deny" || dec.RuleID != "sample-writes" || dec.Confidence != 0.0 {
			t.Fatalf("got %+v", dec)
		}
	})
}

func TestEvaluateWritesAuditEntry(t *testing.T) {
	set := loadScenarioSet(t)
	store := NewStaticStore(set)
	adv := advisor.New(&advisor.MockProvider{})
	sink := audit.NewMemorySink()
	eng := New(store, adv, sink)

	req := newTestRequest(t, "Read", map[string]any{"file_path": "/etc/shadow"})
	eng.Evaluate(context.Background(), req)

	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Decision.Action != "deny" || entries[0].Decision.RuleID != "deny-etc-shadow" {
		t.Fatalf("unexpected audit entry: %+v", entries[0])
	}
	if len(entries[0].RuleMatches) != 1 || entries[0].RuleMatches[0] != "deny-etc-shadow" {
		t.Fatalf("unexpected rule matches: %+v", entries[0].RuleMatches)
	}
}

func TestEvaluateSurvivesAuditWriteFailure(t *testing.T) {
	set := loadScenarioSet(t)
	store := NewStaticStore(set)
	adv := advisor.New(&advisor.MockProvider{})
	eng := New(store, adv, failingSink{})

	req := newTestRequest(t, "Read", map[string]any{"file_path": "/etc/shadow"})
	dec := eng.Evaluate(context.Background(), req)

	if dec.Action != "deny" || dec.RuleID != "deny-etc-shadow" {
		t.Fatalf("expected the decision to be unaffected by an audit write failure, got %+v", dec)
	}
}

type failingSink struct{}

func (failingSink) Append(audit.Entry) error { return errors.New("audit sink unavailable") }

type unreachableProvider struct{}

func (unreachableProvider) Advise(context.Context, string) (advisor.Verdict, error) {
	return advisor.Verdict{}, context.DeadlineExceeded
}
