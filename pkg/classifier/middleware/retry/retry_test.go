package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/clserrors"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
)

type countingClient struct {
	calls    int
	failures int
	err      error
}

func (c *countingClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	c.calls++
	if c.calls <= c.failures {
		return llm.CompletionResponse{}, c.err
	}
	return llm.CompletionResponse{Content: "ok"}, nil
}

func (c *countingClient) GetModelName() string { return "counting" }

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:   maxAttempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetriesTransientErrors(t *testing.T) {
	base := &countingClient{
		failures: 2,
		err:      clserrors.NewError(clserrors.ErrorTypeTransient, "flaky"),
	}
	client := Middleware(NewPolicy(fastConfig(3), nil))(base)

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, base.calls)
}

func TestDoesNotRetryAuthErrors(t *testing.T) {
	base := &countingClient{
		failures: 5,
		err:      clserrors.NewError(clserrors.ErrorTypeAuth, "bad key"),
	}
	client := Middleware(NewPolicy(fastConfig(3), nil))(base)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, base.calls)
}

func TestExhaustionBecomesUnavailable(t *testing.T) {
	base := &countingClient{
		failures: 10,
		err:      clserrors.NewError(clserrors.ErrorTypeRateLimit, "slow down"),
	}
	client := Middleware(NewPolicy(fastConfig(2), nil))(base)

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, clserrors.IsUnavailable(err))
	assert.Equal(t, 2, base.calls)
}

func TestCalculateDelayBackoffAndCap(t *testing.T) {
	p := NewPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      300 * time.Millisecond,
		BackoffFactor: 2.0,
	}, nil)

	assert.Equal(t, time.Duration(0), p.CalculateDelay(1))
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, p.CalculateDelay(3))
	assert.Equal(t, 300*time.Millisecond, p.CalculateDelay(4))
}

func TestShouldRetryRespectsContextErrors(t *testing.T) {
	assert.False(t, ShouldRetry(context.Canceled))
	assert.False(t, ShouldRetry(context.DeadlineExceeded))
	assert.False(t, ShouldRetry(nil))
}
