package advisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingProvider struct {
	calls   int32
	verdict Verdict
	err     error
}

func (p *countingProvider) Advise(_ context.Context, _ string) (Verdict, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return Verdict{}, p.err
	}
	return p.verdict, nil
}

func TestEvaluateCachesIdenticalRequests(t *testing.T) {
	p := &countingProvider{verdict: Verdict{Decision: "allow", Reason: "ok"}}
	c := New(p, WithCache(16, time.Minute))

	req := Request{ToolName: "Write", Parameters: map[string]any{"path": "/tmp/a"}, RuleID: "r1", Prompt: "p"}
	c.Evaluate(context.Background(), req)
	c.Evaluate(context.Background(), req)

	if got := atomic.LoadInt32(&p.calls); got != 1 {
		t.Fatalf("expected 1 underlying call, got %d", got)
	}
}

func TestEvaluateDifferentParametersMiss(t *testing.T) {
	p := &countingProvider{verdict: Verdict{Decision: "allow"}}
	c := New(p, WithCache(16, time.Minute))

	c.Evaluate(context.Background(), Request{ToolName: "Write", Parameters: map[string]any{"path": "/tmp/a"}, RuleID: "r1", Prompt: "p"})
	c.Evaluate(context.Background(), Request{ToolName: "Write", Parameters: map[string]any{"path": "/tmp/b"}, RuleID: "r1", Prompt: "p"})

	if got := atomic.LoadInt32(&p.calls); got != 2 {
		t.Fatalf("expected 2 underlying calls, got %d", got)
	}
}

func TestCanonicalKeyStableUnderMapOrder(t *testing.T) {
	a := Request{ToolName: "Write", RuleID: "r1", Parameters: map[string]any{"a": 1.0, "b": "x"}}
	b := Request{ToolName: "Write", RuleID: "r1", Parameters: map[string]any{"b": "x", "a": 1.0}}
	if canonicalKey(a) != canonicalKey(b) {
		t.Fatalf("expected identical canonical keys regardless of map iteration order")
	}
}

func TestFailModeDenyOnUnavailable(t *testing.T) {
	p := &countingProvider{err: errors.New("boom")}
	c := New(p, WithMaxRetries(0), WithFailMode(FailDeny))

	out := c.Evaluate(context.Background(), Request{ToolName: "Write", RuleID: "r1", Prompt: "p"})
	if !out.Failed || out.Verdict.Decision != "deny" || out.Verdict.Confidence != 0 {
		t.Fatalf("expected failed deny verdict, got %+v", out)
	}
}

func TestFailModeAllowOnUnavailable(t *testing.T) {
	p := &countingProvider{err: errors.New("boom")}
	c := New(p, WithMaxRetries(0), WithFailMode(FailAllow))

	out := c.Evaluate(context.Background(), Request{ToolName: "Write", RuleID: "r1", Prompt: "p"})
	if !out.Failed || out.Verdict.Decision != "allow" {
		t.Fatalf("expected failed allow verdict, got %+v", out)
	}
}

func TestCircuitBreakerOpensAndHalfOpens(t *testing.T) {
	b := newBreaker(3, 20*time.Millisecond)
	for i := 0; i < 3; i++ {
		if !b.allow() {
			t.Fatalf("expected closed breaker to allow call %d", i)
		}
		b.recordFailure()
	}
	if b.state() != "open" {
		t.Fatalf("expected breaker open after threshold failures, got %s", b.state())
	}
	if b.allow() {
		t.Fatalf("expected breaker to short-circuit while open")
	}

	time.Sleep(25 * time.Millisecond)
	if !b.allow() {
		t.Fatalf("expected half-open probe to be allowed after cooldown")
	}
	b.recordSuccess()
	if b.state() != "closed" {
		t.Fatalf("expected breaker closed after successful probe, got %s", b.state())
	}
}

func TestCircuitBreakerReopensOnFailedProbe(t *testing.T) {
	b := newBreaker(1, 10*time.Millisecond)
	b.allow()
	b.recordFailure()
	time.Sleep(15 * time.Millisecond)
	if !b.allow() {
		t.Fatalf("expected probe to be allowed")
	}
	b.recordFailure()
	if b.state() != "open" {
		t.Fatalf("expected breaker to re-open after failed probe, got %s", b.state())
	}
}

func TestMockProviderDeniesDestructivePrompt(t *testing.T) {
	m := &MockProvider{}
	v, err := m.Advise(context.Background(), "plan: rm -rf / now")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Decision != "deny" {
		t.Fatalf("expected deny, got %+v", v)
	}
}

func TestRateLimitThrottlesCalls(t *testing.T) {
	p := &countingProvider{verdict: Verdict{Decision: "allow"}}
	c := New(p, WithMaxRetries(0), WithRateLimit(1000, 1))

	start := time.Now()
	for i := 0; i < 3; i++ {
		c.Evaluate(context.Background(), Request{
			ToolName: "Write", RuleID: "r1", Prompt: "p",
			Parameters: map[string]any{"i": i},
		})
	}
	if elapsed := time.Since(start); elapsed < 2*time.Millisecond {
		t.Fatalf("expected rate limiting to introduce delay across 3 calls with burst 1, elapsed %s", elapsed)
	}
	if got := atomic.LoadInt32(&p.calls); got != 3 {
		t.Fatalf("expected all 3 calls to eventually go through, got %d", got)
	}
}

func TestMockProviderAllowsBenignPrompt(t *testing.T) {
	m := &MockProvider{}
	v, err := m.Advise(context.Background(), "write a short poem to a file")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Decision != "allow" {
		t.Fatalf("expected allow, got %+v", v)
	}
}
