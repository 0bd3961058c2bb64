// Package request implements the inbound ToolRequest model: validation and
// recursive sanitization of caller-supplied values before they reach the
// rule engine, the audit log, or an AI prompt.
package request

import (
	"regexp"
	"strings"
	"time"

	"github.com/superego-run/superego/core/apperr"
)

// toolNamePattern matches the allowed tool_name character class: letters,
// digits, underscore, hyphen, dot.
var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Value is a recursive JSON-like value: string, float64, bool, nil,
// []Value, or map[string]Value. It mirrors the shape produced by
// encoding/json's default unmarshal-into-any, so callers can pass
// interface{} values straight through.
type Value = any

// ToolRequest is what a caller wants to do, after validation and
// sanitization.
type ToolRequest struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	AgentID    string         `json:"agent_id"`
	SessionID  string         `json:"session_id"`
	Cwd        string         `json:"cwd"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Raw is the unvalidated wire shape accepted by transport adapters.
type Raw struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	AgentID    string         `json:"agent_id"`
	SessionID  string         `json:"session_id"`
	Cwd        string         `json:"cwd"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
}

// Normalize validates raw and returns a sanitized ToolRequest, or an
// *apperr.Error with code Validation.
func Normalize(raw Raw) (*ToolRequest, error) {
	if raw.ToolName == "" {
		return nil, apperr.Validationf("tool_name", "tool_name is required")
	}
	if !toolNamePattern.MatchString(raw.ToolName) {
		return nil, apperr.Validationf("tool_name", "tool_name %q has invalid characters or is too long", raw.ToolName)
	}
	if raw.AgentID == "" {
		return nil, apperr.Validationf("agent_id", "agent_id is required")
	}
	if raw.SessionID == "" {
		return nil, apperr.Validationf("session_id", "session_id is required")
	}
	if raw.Cwd == "" {
		return nil, apperr.Validationf("cwd", "cwd is required")
	}

	ts := time.Now().UTC()
	if raw.Timestamp != nil {
		ts = *raw.Timestamp
	}

	var params map[string]any
	if raw.Parameters != nil {
		params = sanitizeMap(raw.Parameters)
	}

	return &ToolRequest{
		ToolName:   raw.ToolName,
		Parameters: params,
		AgentID:    sanitizeString(raw.AgentID),
		SessionID:  sanitizeString(raw.SessionID),
		Cwd:        sanitizeString(raw.Cwd),
		Timestamp:  ts,
	}, nil
}

// sanitizeMap recursively sanitizes a parameter mapping: keys have null
// bytes stripped and "../" sequences collapsed to empty; string leaves have
// only null bytes and CR stripped ("../" is left intact in values — only
// keys are path-escape sequences). Lists preserve order. The input is not
// mutated; a new map is returned.
func sanitizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[sanitizeKey(k)] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return sanitizeString(t)
	case map[string]any:
		return sanitizeMap(t)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = sanitizeValue(elem)
		}
		return out
	default:
		return v
	}
}

func sanitizeKey(k string) string {
	k = sanitizeString(k)
	// Repeat until stable: removing one "../" can join its neighbours into
	// a new one (e.g. "....//" -> "../").
	for strings.Contains(k, "../") {
		k = strings.ReplaceAll(k, "../", "")
	}
	return k
}

// sanitizeString strips null bytes and carriage returns. Sanitization is
// lossy by design: the sanitized form, not the original, is what gets
// audited and rendered into prompts.
func sanitizeString(s string) string {
	if !strings.ContainsAny(s, "\x00\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == 0 || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Sanitize re-applies sanitization to an already-normalized request's
// string fields and parameters. It is idempotent: Sanitize(Sanitize(r))
// equals Sanitize(r).
func Sanitize(r *ToolRequest) *ToolRequest {
	out := *r
	out.AgentID = sanitizeString(r.AgentID)
	out.SessionID = sanitizeString(r.SessionID)
	out.Cwd = sanitizeString(r.Cwd)
	if r.Parameters != nil {
		out.Parameters = sanitizeMap(r.Parameters)
	}
	return &out
}
