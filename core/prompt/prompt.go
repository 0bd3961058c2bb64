// Package prompt renders a deterministic AI-advisor prompt from a
// ToolRequest and the matched SecurityRule. Determinism matters here: the
// advisor's result cache key is derived from the request, not the prompt
// text, but a non-deterministic prompt would make repeated evaluations of
// an identical request produce different advisor reasoning.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/superego-run/superego/core/request"
	"github.com/superego-run/superego/core/rules"
)

const responseSchemaInstruction = `Respond with a single JSON object and nothing else, matching exactly:
{"decision": "allow"|"deny", "reason": string, "confidence": number between 0 and 1, "risk_factors": [string, ...]}`

// Build renders req and the matching rule into a prompt with a stable
// section order: tool identity, parameters (keys sorted), agent/session,
// cwd, the rule's stated concern, and the fixed response schema.
func Build(req *request.ToolRequest, rule rules.SecurityRule) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Tool: %s\n", req.ToolName)
	b.WriteString("Parameters:\n")
	for _, line := range formatParameters(req.Parameters, 0) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Agent: %s\n", req.AgentID)
	fmt.Fprintf(&b, "Session: %s\n", req.SessionID)
	fmt.Fprintf(&b, "Working directory: %s\n", req.Cwd)
	b.WriteString("\nPolicy concern:\n")
	fmt.Fprintf(&b, "Rule %s: %s\n", rule.ID, rule.Reason)
	if rule.SampleGuidance != "" {
		fmt.Fprintf(&b, "Guidance: %s\n", rule.SampleGuidance)
	}
	b.WriteString("\n")
	b.WriteString(responseSchemaInstruction)

	return b.String()
}

// formatParameters renders a parameter map as indented "key: value" lines
// with keys sorted, recursing into nested maps and lists in place.
func formatParameters(m map[string]any, depth int) []string {
	if len(m) == 0 {
		return []string{indent(depth) + "(none)"}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		lines = append(lines, formatValue(k, m[k], depth)...)
	}
	return lines
}

func formatValue(key string, v any, depth int) []string {
	switch t := v.(type) {
	case map[string]any:
		lines := []string{fmt.Sprintf("%s%s:", indent(depth), key)}
		return append(lines, formatParameters(t, depth+1)...)
	case []any:
		lines := []string{fmt.Sprintf("%s%s:", indent(depth), key)}
		for i, elem := range t {
			lines = append(lines, formatValue(fmt.Sprintf("[%d]", i), elem, depth+1)...)
		}
		return lines
	default:
		return []string{fmt.Sprintf("%s%s: %v", indent(depth), key, t)}
	}
}

func indent(depth int) string {
	return strings.Repeat("  ", depth+1)
}
