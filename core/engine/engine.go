// Package engine implements the decision engine (C4): it scans the rule
// store in priority order, resolves sample rules through the advisor, and
// writes an audit entry before returning.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/superego-run/superego/audit"
	"github.com/superego-run/superego/core/advisor"
	"github.com/superego-run/superego/core/predicate"
	"github.com/superego-run/superego/core/prompt"
	"github.com/superego-run/superego/core/request"
	"github.com/superego-run/superego/core/rules"
)

// Decision is the engine's externally visible verdict.
type Decision struct {
	Action           string   `json:"action"` // "allow" or "deny"
	Reason           string   `json:"reason"`
	RuleID           string   `json:"rule_id"`
	Confidence       float64  `json:"confidence"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	AIProvider       string   `json:"ai_provider,omitempty"`
	AIModel          string   `json:"ai_model,omitempty"`
	RiskFactors      []string `json:"risk_factors,omitempty"`
}

// Store provides the engine's read access to the live rule snapshot. It is
// satisfied by *reload.Watcher and by a plain static holder for tests.
type Store interface {
	Current() *rules.RuleSet
}

// StaticStore is a Store that never changes, for tests and for running
// without hot-reload.
type StaticStore struct{ set *rules.RuleSet }

// NewStaticStore wraps a fixed RuleSet as a Store.
func NewStaticStore(set *rules.RuleSet) *StaticStore { return &StaticStore{set: set} }

func (s *StaticStore) Current() *rules.RuleSet { return s.set }

// LastLoadError always reports success: a StaticStore never reloads, so it
// satisfies core/health.RuleStore alongside *reload.Watcher.
func (s *StaticStore) LastLoadError() error { return nil }

// Engine is the decision engine: it needs a rule store, an advisor
// client, and an audit sink.
type Engine struct {
	store   Store
	advisor *advisor.Client
	sink    audit.Sink
	log     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger (default: slog.Default()), used
// to log a failed audit write without altering the decision it accompanies.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an Engine. sink may be nil, in which case audit writes are
// skipped (used by tests that don't care about the audit trail).
func New(store Store, adv *advisor.Client, sink audit.Sink, opts ...Option) *Engine {
	e := &Engine{store: store, advisor: adv, sink: sink, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the full decision algorithm from spec: snapshot, scan in
// priority order, first match wins, sample resolves through the advisor,
// no match fails closed. An AuditEntry is written before returning,
// best-effort.
func (e *Engine) Evaluate(ctx context.Context, req *request.ToolRequest) *Decision {
	start := time.Now()

	set := e.store.Current()
	var matchedIDs []string
	var decision *Decision

	for _, rule := range set.Rules() {
		if !predicate.Evaluate(&rule.Conditions, req) {
			continue
		}
		matchedIDs = append(matchedIDs, rule.ID)
		decision = e.resolve(ctx, req, rule)
		break
	}

	if decision == nil {
		decision = &Decision{
			Action:     "deny",
			Reason:     "no matching rule",
			RuleID:     "",
			Confidence: 1.0,
		}
	}
	decision.ProcessingTimeMs = time.Since(start).Milliseconds()

	e.audit(req, decision, matchedIDs)
	return decision
}

func (e *Engine) resolve(ctx context.Context, req *request.ToolRequest, rule rules.SecurityRule) *Decision {
	switch rule.Action {
	case rules.Allow:
		return &Decision{Action: "allow", Reason: rule.Reason, RuleID: rule.ID, Confidence: 1.0}
	case rules.Deny:
		return &Decision{Action: "deny", Reason: rule.Reason, RuleID: rule.ID, Confidence: 1.0}
	case rules.Sample:
		return e.sample(ctx, req, rule)
	default:
		return &Decision{Action: "deny", Reason: "unknown rule action", RuleID: rule.ID, Confidence: 1.0}
	}
}

func (e *Engine) sample(ctx context.Context, req *request.ToolRequest, rule rules.SecurityRule) *Decision {
	p := prompt.Build(req, rule)
	out := e.advisor.Evaluate(ctx, advisor.Request{
		ToolName:   req.ToolName,
		Parameters: req.Parameters,
		RuleID:     rule.ID,
		Prompt:     p,
	})

	return &Decision{
		Action:      out.Verdict.Decision,
		Reason:      out.Verdict.Reason,
		RuleID:      rule.ID,
		Confidence:  out.Verdict.Confidence,
		AIProvider:  out.Verdict.ProviderName,
		AIModel:     out.Verdict.ModelName,
		RiskFactors: out.Verdict.RiskFactors,
	}
}

func (e *Engine) audit(req *request.ToolRequest, dec *Decision, matched []string) {
	if e.sink == nil {
		return
	}
	entry := audit.Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Request: audit.RequestSnapshot{
			ToolName:   req.ToolName,
			Parameters: req.Parameters,
			AgentID:    req.AgentID,
			SessionID:  req.SessionID,
			Cwd:        req.Cwd,
			Timestamp:  req.Timestamp,
		},
		Decision: audit.DecisionSnapshot{
			Action:     dec.Action,
			Reason:     dec.Reason,
			RuleID:     dec.RuleID,
			Confidence: dec.Confidence,
		},
		RuleMatches: matched,
	}
	// Best-effort: a write failure never changes the decision already
	// computed above, only the audit trail for it.
	if err := e.sink.Append(entry); err != nil {
		e.log.Error("audit append failed", "request_id", entry.ID, "rule_id", dec.RuleID, "error", err)
	}
}
