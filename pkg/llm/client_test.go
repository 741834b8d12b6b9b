package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider returns canned responses or errors in sequence.
type fakeProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeProvider) Complete(_ context.Context, _ Request) (*Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return &Response{Content: f.responses[i]}, nil
	}
	return &Response{Content: ""}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func testPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, p Provider, policy RetryPolicy) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Provider: p,
		Policy:   policy,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func TestInferSucceedsAfterTransientFailures(t *testing.T) {
	transient := errors.New("connection refused")
	fake := &fakeProvider{
		errs:      []error{transient, transient, transient, nil},
		responses: []string{"", "", "", "recovered"},
	}
	c := newTestClient(t, fake, testPolicy(4))

	out, err := c.Infer(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	assert.Equal(t, 4, fake.calls)
}

func TestInferExhaustsAttemptBudget(t *testing.T) {
	transient := errors.New("connection refused")
	fake := &fakeProvider{
		errs:      []error{transient, transient, transient, nil},
		responses: []string{"", "", "", "recovered"},
	}
	c := newTestClient(t, fake, testPolicy(2))

	_, err := c.Infer(context.Background(), "sys", "prompt")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, 2, fake.calls)
}

func TestInferNonRetryableFailsImmediately(t *testing.T) {
	fatal := errors.New("invalid api key")
	fake := &fakeProvider{errs: []error{fatal}}
	c := newTestClient(t, fake, testPolicy(3))

	_, err := c.Infer(context.Background(), "sys", "prompt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, 1, fake.calls)
}

func TestInferJSONRetriesMalformedOutput(t *testing.T) {
	fake := &fakeProvider{
		responses: []string{"no structure here", `result: {"done": true}`},
	}
	c := newTestClient(t, fake, testPolicy(3))

	payload, err := c.InferJSON(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, true, payload["done"])
	assert.Equal(t, 2, fake.calls)
}

func TestInferJSONMalformedExhaustion(t *testing.T) {
	fake := &fakeProvider{
		responses: []string{"junk", "more junk", "still junk"},
	}
	c := newTestClient(t, fake, testPolicy(3))

	_, err := c.InferJSON(context.Background(), "sys", "prompt")
	require.Error(t, err)

	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 3, malformed.Attempts)
	assert.Equal(t, 3, fake.calls)
}

func TestInferJSONMixedTransientAndMalformed(t *testing.T) {
	transient := errors.New("timeout awaiting response")
	fake := &fakeProvider{
		errs:      []error{transient, nil, nil},
		responses: []string{"", "garbled", `{"n": 1}`},
	}
	c := newTestClient(t, fake, testPolicy(3))

	payload, err := c.InferJSON(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, float64(1), payload["n"])
	assert.Equal(t, 3, fake.calls)
}

func TestInferRespectsContextCancellation(t *testing.T) {
	transient := errors.New("connection refused")
	fake := &fakeProvider{errs: []error{transient, transient, transient}}

	policy := testPolicy(3)
	policy.BaseDelay = time.Minute
	policy.MaxDelay = time.Minute
	c := newTestClient(t, fake, policy)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Infer(ctx, "sys", "prompt")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fake.calls)
}

func TestRetryPolicyDelayProgression(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 10 * time.Second}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 10*time.Second, p.Delay(4))
	assert.Equal(t, 10*time.Second, p.Delay(9))
}
