package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ebarros/kestrel/internal/metrics"
	"github.com/rs/zerolog"
)

// RetryPolicy bounds how inference calls are retried. It is always in
// effect; there is no unretried code path.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration

	// Retryable classifies errors worth retrying with backoff.
	// Defaults to IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the standard policy: three attempts with
// exponential backoff from 1s, doubling, capped at 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Retryable:   IsTransient,
	}
}

// Delay returns the backoff before retry number n (0-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < n; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Client wraps a Provider with retries and structured-output extraction
type Client struct {
	provider Provider
	policy   RetryPolicy
	temp     float64
	maxTok   int
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// ClientConfig holds client construction parameters
type ClientConfig struct {
	Provider    Provider
	Policy      RetryPolicy
	Temperature float64
	MaxTokens   int
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics // optional
}

// NewClient creates a retrying inference client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	policy := cfg.Policy
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.Multiplier <= 1 {
		policy.Multiplier = 2
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = 10 * time.Second
	}

	return &Client{
		provider: cfg.Provider,
		policy:   policy,
		temp:     cfg.Temperature,
		maxTok:   cfg.MaxTokens,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Provider returns the underlying provider name
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Infer performs a text inference call, retrying transient backend errors
// with exponential backoff.
func (c *Client) Infer(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return "", err
			}
		}

		resp, err := c.complete(ctx, system, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !c.policy.Retryable(err) {
			c.logError(err, attempt, "inference failed with non-retryable error")
			return "", fmt.Errorf("inference call failed: %w", err)
		}
		c.logError(err, attempt, "transient inference error")
		c.countRetry()
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrBackendUnavailable, c.policy.MaxAttempts, lastErr)
}

// InferJSON performs an inference call expecting a JSON object in the
// response. Malformed output is retried by re-issuing the same call; the
// parse error only becomes fatal once the attempt budget is spent.
func (c *Client) InferJSON(ctx context.Context, system, prompt string) (map[string]interface{}, error) {
	var lastErr error
	malformed := false

	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		resp, err := c.complete(ctx, system, prompt)
		if err != nil {
			lastErr = err
			if !c.policy.Retryable(err) {
				c.logError(err, attempt, "inference failed with non-retryable error")
				return nil, fmt.Errorf("inference call failed: %w", err)
			}
			c.logError(err, attempt, "transient inference error")
			c.countRetry()
			continue
		}

		payload, err := ExtractJSON(resp)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		malformed = true
		c.logError(err, attempt, "malformed structured output, re-issuing call")
		c.countRetry()
	}

	if malformed {
		return nil, &MalformedOutputError{Attempts: c.policy.MaxAttempts, Last: lastErr}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrBackendUnavailable, c.policy.MaxAttempts, lastErr)
}

func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.provider.Complete(ctx, Request{
		System:      system,
		Prompt:      prompt,
		Temperature: c.temp,
		MaxTokens:   c.maxTok,
	})
	if c.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.InferenceCallsTotal.WithLabelValues(c.provider.Name(), outcome).Inc()
	}
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Client) sleep(ctx context.Context, retry int) error {
	select {
	case <-time.After(c.policy.Delay(retry)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) logError(err error, attempt int, msg string) {
	c.logger.Warn().
		Err(err).
		Int("attempt", attempt+1).
		Int("max_attempts", c.policy.MaxAttempts).
		Str("provider", c.provider.Name()).
		Msg(msg)
}

func (c *Client) countRetry() {
	if c.metrics != nil {
		c.metrics.InferenceRetriesTotal.Inc()
	}
}
