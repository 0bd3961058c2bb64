package advisor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalKey deterministically encodes (tool_name, parameters, rule_id)
// so that identical requests within TTL share one cache entry regardless
// of map iteration order. Parameters are re-marshalled through a
// sorted-key walk before hashing.
func canonicalKey(req Request) string {
	canon := struct {
		Tool   string `json:"tool_name"`
		Params any    `json:"parameters"`
		Rule   string `json:"rule_id"`
	}{
		Tool:   req.ToolName,
		Params: canonicalize(req.Parameters),
		Rule:   req.RuleID,
	}
	data, _ := json.Marshal(canon)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// canonicalize recursively rewrites maps into sorted key/value slices so
// that json.Marshal's output is stable across equivalent inputs (Go's
// encoding/json already sorts map[string]any keys; the explicit pass keeps
// the key order independent of that encoder detail). Scalars, numbers
// included, are passed through unchanged.
func canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, [2]any{k, canonicalize(t[k])})
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}
