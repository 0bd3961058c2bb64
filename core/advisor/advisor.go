// Package advisor implements the AI advisor client: the Provider
// abstraction, a deterministic mock, and the wrapping behavior (timeout,
// result cache, retries, circuit breaker, bounded fan-out) described for
// the sample branch of the decision engine.
package advisor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Verdict is what a Provider returns for one prompt.
type Verdict struct {
	Decision     string // "allow" or "deny"
	Reason       string
	Confidence   float64
	RiskFactors  []string
	ProviderName string
	ModelName    string
}

// Provider is an AI evaluator. A call that fails transiently should
// return an error; a structurally valid deny/allow response is not an
// error even if the advisor is recommending deny.
type Provider interface {
	Advise(ctx context.Context, prompt string) (Verdict, error)
}

// Request identifies one advisor call for caching purposes.
type Request struct {
	ToolName   string
	Parameters map[string]any
	RuleID     string
	Prompt     string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout (default 10s).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithMaxRetries sets the retry budget for transport errors (default 2).
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithCache bounds and expires the result cache (default 1024 entries,
// 5 minute TTL).
func WithCache(size int, ttl time.Duration) Option {
	return func(c *Client) { c.cache = newCache(size, ttl) }
}

// WithBreaker configures the circuit breaker's open threshold and cooldown
// (default 5 consecutive failures, 30s cooldown).
func WithBreaker(openThreshold int, cooldown time.Duration) Option {
	return func(c *Client) { c.breaker = newBreaker(openThreshold, cooldown) }
}

// WithConcurrency caps the number of advisor calls in flight at once
// (default 32), matching the host-wide bounded fan-out requirement.
func WithConcurrency(n int) Option {
	return func(c *Client) { c.sem = make(chan struct{}, n) }
}

// WithRateLimit throttles calls reaching the provider to rps sustained
// with the given burst, independent of the concurrency cap: concurrency
// bounds how many calls run at once, the rate limiter bounds how many
// start per second. Disabled (unlimited) by default.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// FailMode is the fallback policy applied when the advisor is unavailable.
type FailMode string

const (
	FailDeny  FailMode = "deny"
	FailAllow FailMode = "allow"
)

// WithFailMode sets the sample_failure_mode (default deny, fail-closed).
func WithFailMode(m FailMode) Option {
	return func(c *Client) { c.failMode = m }
}

// Client wraps a Provider with timeout, retry, circuit breaker, result
// cache, single-flight coalescing, and bounded concurrency.
type Client struct {
	provider   Provider
	timeout    time.Duration
	maxRetries int
	failMode   FailMode

	cache   *cache
	breaker *breaker
	group   singleflightGroup
	sem     chan struct{}
	limiter *rate.Limiter
}

// New builds a Client around provider with the documented defaults,
// overridden by opts.
func New(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider:   provider,
		timeout:    10 * time.Second,
		maxRetries: 2,
		failMode:   FailDeny,
		cache:      newCache(1024, 5*time.Minute),
		breaker:    newBreaker(5, 30*time.Second),
		sem:        make(chan struct{}, 32),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Outcome is the result of Evaluate: either a provider-backed verdict, or
// a fail-mode fallback when the advisor could not be reached.
type Outcome struct {
	Verdict   Verdict
	FromCache bool
	Failed    bool // true when the fail-mode fallback was applied
}

// Evaluate resolves req to an Outcome, applying cache, single-flight, the
// circuit breaker, bounded concurrency, the rate limiter, and retries in
// that order.
func (c *Client) Evaluate(ctx context.Context, req Request) Outcome {
	key := canonicalKey(req)

	if v, ok := c.cache.get(key); ok {
		return Outcome{Verdict: v, FromCache: true}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.callWithPolicy(ctx, req)
	})
	if err != nil {
		return Outcome{Verdict: c.failModeVerdict(err), Failed: true}
	}
	verdict := v.(Verdict)
	c.cache.set(key, verdict)
	return Outcome{Verdict: verdict}
}

func (c *Client) callWithPolicy(ctx context.Context, req Request) (Verdict, error) {
	if !c.breaker.allow() {
		return Verdict{}, fmt.Errorf("advisor circuit breaker open")
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return Verdict{}, ctx.Err()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Verdict{}, fmt.Errorf("advisor rate limit: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		v, err := c.provider.Advise(callCtx, req.Prompt)
		cancel()
		if err == nil {
			c.breaker.recordSuccess()
			return v, nil
		}
		lastErr = err
		// A structurally valid deny is not an error path on the
		// Provider interface, so any error here is a transport
		// failure: it is always eligible for retry.
	}
	c.breaker.recordFailure()
	return Verdict{}, fmt.Errorf("advisor unavailable after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) failModeVerdict(cause error) Verdict {
	decision := "deny"
	if c.failMode == FailAllow {
		decision = "allow"
	}
	return Verdict{
		Decision:   decision,
		Reason:     fmt.Sprintf("advisor unavailable: %v", cause),
		Confidence: 0,
	}
}

// BreakerState reports the circuit breaker's current state, for health
// reporting.
func (c *Client) BreakerState() string { return c.breaker.state() }
