package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider implements Provider using the official OpenAI Go SDK. It
// expects the model to return the fixed JSON response schema the prompt
// builder instructs it to produce: {decision, reason, confidence,
// risk_factors}.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openaiConfig)

type openaiConfig struct {
	model   string
	apiKey  string
	baseURL string
	timeout time.Duration
}

// WithModel sets the model name (default "gpt-4o").
func WithModel(model string) OpenAIOption {
	return func(c *openaiConfig) { c.model = model }
}

// WithAPIKey sets the API key. If empty, the SDK falls back to
// OPENAI_API_KEY.
func WithAPIKey(key string) OpenAIOption {
	return func(c *openaiConfig) { c.apiKey = key }
}

// WithBaseURL sets a custom base URL, enabling any OpenAI-compatible
// endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) { c.baseURL = url }
}

// WithRequestTimeout sets the per-request timeout at the SDK client level,
// distinct from the advisor Client's own call-level timeout.
func WithRequestTimeout(d time.Duration) OpenAIOption {
	return func(c *openaiConfig) { c.timeout = d }
}

// NewOpenAIProvider creates an OpenAIProvider with the given options.
func NewOpenAIProvider(opts ...OpenAIOption) *OpenAIProvider {
	cfg := openaiConfig{model: "gpt-4o"}
	for _, o := range opts {
		o(&cfg)
	}

	var clientOpts []option.RequestOption
	if cfg.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.timeout))
	}

	return &OpenAIProvider{
		client: openai.NewClient(clientOpts...),
		model:  cfg.model,
	}
}

// verdictJSON is the wire shape the prompt instructs the model to return.
type verdictJSON struct {
	Decision    string   `json:"decision"`
	Reason      string   `json:"reason"`
	Confidence  float64  `json:"confidence"`
	RiskFactors []string `json:"risk_factors"`
}

// Advise sends prompt as a single user message and parses the model's
// JSON response into a Verdict.
func (p *OpenAIProvider) Advise(ctx context.Context, prompt string) (Verdict, error) {
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Verdict{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Verdict{}, fmt.Errorf("openai returned no choices")
	}

	var parsed verdictJSON
	content := completion.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return Verdict{}, fmt.Errorf("parsing advisor response: %w", err)
	}
	if parsed.Decision != "allow" && parsed.Decision != "deny" {
		return Verdict{}, fmt.Errorf("advisor returned invalid decision %q", parsed.Decision)
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Verdict{
		Decision:     parsed.Decision,
		Reason:       parsed.Reason,
		Confidence:   confidence,
		RiskFactors:  parsed.RiskFactors,
		ProviderName: "openai",
		ModelName:    p.model,
	}, nil
}
