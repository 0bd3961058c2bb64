package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const ruleDoc1 = `
rules:
  - id: "r1"
    priority: 10
    action: deny
    reason: "first version"
    conditions: { field: "tool_name", op: "equals", value: "Bash" }
`

const ruleDoc2 = `
rules:
  - id: "r1"
    priority: 10
    action: allow
    conditions: { field: "tool_name", op: "equals", value: "Bash" }
`

const ruleDocInvalid = `
rules:
  - id: "r1"
    priority: 9999
    action: deny
    reason: "out of range priority"
    conditions: { field: "tool_name", op: "equals", value: "Bash" }
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestNewLoadsInitialSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeFile(t, path, ruleDoc1)

	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if w.Current().Len() != 1 {
		t.Fatalf("expected 1 rule, got %d", w.Current().Len())
	}
}

func TestNewFailsOnInvalidInitialLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeFile(t, path, ruleDocInvalid)

	if _, err := New(path); err == nil {
		t.Fatal("expected New to fail on invalid initial rule file")
	}
}

func TestRunReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeFile(t, path, ruleDoc1)

	w, err := New(path, WithPollInterval(20*time.Millisecond), WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	r, _ := w.Current().ByID("r1")
	if r.Action != "deny" {
		t.Fatalf("expected initial action deny, got %s", r.Action)
	}

	time.Sleep(30 * time.Millisecond) // ensure distinct mtime
	writeFile(t, path, ruleDoc2)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, ok := w.Current().ByID("r1")
		if ok && r.Action == "allow" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected reload to pick up new rule file within deadline")
}

func TestRunRetainsPreviousSnapshotOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeFile(t, path, ruleDoc1)

	w, err := New(path, WithPollInterval(20*time.Millisecond), WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	writeFile(t, path, ruleDocInvalid)

	// Give the watcher ample opportunity to attempt (and fail) a reload.
	time.Sleep(200 * time.Millisecond)

	if w.Current().Len() != 1 {
		t.Fatalf("expected previous snapshot to be retained, got %d rules", w.Current().Len())
	}
	if w.LastLoadError() == nil {
		t.Fatal("expected LastLoadError to report the failed reload")
	}
}
