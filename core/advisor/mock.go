package advisor

import (
	"context"
	"strings"
)

// MockProvider is a deterministic Provider for tests and for
// sample_failure_mode scenarios where no real advisor is configured. It
// inspects the rendered prompt for a small set of keywords rather than
// calling out to any external service.
type MockProvider struct {
	// DenyKeywords causes Advise to return deny when any keyword appears
	// in the prompt (case-insensitive). Defaults to a small built-in list
	// of obviously destructive shell fragments if left nil.
	DenyKeywords []string
	// Fixed, if set, is returned for every call regardless of prompt
	// content — useful for pinning a scenario's outcome in a test.
	Fixed *Verdict
}

func (m *MockProvider) Advise(_ context.Context, prompt string) (Verdict, error) {
	if m.Fixed != nil {
		return *m.Fixed, nil
	}

	keywords := m.DenyKeywords
	if keywords == nil {
		keywords = []string{"rm -rf", "curl | sh", ":(){ :|:& };:"}
	}
	lower := strings.ToLower(prompt)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return Verdict{
				Decision:     "deny",
				Reason:       "prompt contains a recognized destructive pattern",
				Confidence:   0.9,
				RiskFactors:  []string{"destructive-command"},
				ProviderName: "mock",
				ModelName:    "mock-v1",
			}, nil
		}
	}
	return Verdict{
		Decision:     "allow",
		Reason:       "no destructive pattern recognized",
		Confidence:   0.6,
		ProviderName: "mock",
		ModelName:    "mock-v1",
	}, nil
}
