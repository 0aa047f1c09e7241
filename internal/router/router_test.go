package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartwell-labs/second-opinion/internal/common"
	"github.com/chartwell-labs/second-opinion/internal/llm"
	"github.com/chartwell-labs/second-opinion/internal/service"
)

// testDeployments builds a valid azure-style deployment per name. Mocks are
// keyed by the model each deployment carries.
func testDeployments(names ...string) []DeploymentConfig {
	deps := make([]DeploymentConfig, 0, len(names))
	for _, name := range names {
		deps = append(deps, DeploymentConfig{
			Name:     name,
			Provider: "azure",
			Endpoint: "https://unit.test",
			APIKey:   "test-key",
			Model:    "gpt-" + name,
		})
	}
	return deps
}

func mockFactory(clients map[string]llm.Client) func(llm.Config) (llm.Client, error) {
	return func(cfg llm.Config) (llm.Client, error) {
		client, ok := clients[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("no mock for model %s", cfg.Model)
		}
		return client, nil
	}
}

// fastOptions keeps every delay in the low milliseconds so failover paths
// run quickly under test.
func fastOptions(factory func(llm.Config) (llm.Client, error)) Options {
	return Options{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		ClientFactory: factory,
		Retry: service.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
		MaxPasses: 2,
		PassDelay: time.Millisecond,
	}
}

func TestNewValidation(t *testing.T) {
	factory := mockFactory(map[string]llm.Client{
		"gpt-primary":   llm.NewMockClient(llm.MockResponse{Text: "ok"}),
		"gpt-secondary": llm.NewMockClient(llm.MockResponse{Text: "ok"}),
	})

	tests := []struct {
		name        string
		deployments []DeploymentConfig
		wantErr     error
	}{
		{
			name:        "no deployments",
			deployments: nil,
			wantErr:     common.ErrNoDeployments,
		},
		{
			name: "missing endpoint",
			deployments: []DeploymentConfig{
				{Name: "primary", Provider: "azure", APIKey: "k", Model: "gpt-primary"},
			},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name: "unsupported provider",
			deployments: []DeploymentConfig{
				{Name: "primary", Provider: "openai", APIKey: "k"},
			},
			wantErr: common.ErrInvalidConfig,
		},
		{
			name:        "duplicate names",
			deployments: append(testDeployments("primary"), testDeployments("primary")...),
			wantErr:     common.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.deployments, fastOptions(factory))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, r)
		})
	}

	r, err := New(testDeployments("primary", "secondary"), fastOptions(factory))
	require.NoError(t, err)
	defer r.Close()
}

func TestInvokeFirstHealthyDeployment(t *testing.T) {
	mock := llm.NewMockClient(llm.MockResponse{Text: `{"verdict":"ok"}`})
	r, err := New(testDeployments("primary"), fastOptions(mockFactory(map[string]llm.Client{
		"gpt-primary": mock,
	})))
	require.NoError(t, err)
	defer r.Close()

	result := r.Invoke(context.Background(), llm.CompletionRequest{
		System: "you are a reviewer",
		User:   "review this case",
	})

	require.True(t, result.OK())
	assert.Equal(t, `{"verdict":"ok"}`, result.Text)
	assert.Equal(t, "primary", result.Deployment)
	assert.Empty(t, result.Retries)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "you are a reviewer", calls[0].System)
	assert.Equal(t, "review this case", calls[0].User)
}

func TestInvokeRotatesPastRateLimits(t *testing.T) {
	primary := llm.NewMockClient(llm.MockResponse{Err: &llm.RateLimitError{}})
	secondary := llm.NewMockClient(llm.MockResponse{Err: &llm.RateLimitError{RetryAfter: time.Second}})
	tertiary := llm.NewMockClient(llm.MockResponse{Text: "served"})

	r, err := New(testDeployments("primary", "secondary", "tertiary"),
		fastOptions(mockFactory(map[string]llm.Client{
			"gpt-primary":   primary,
			"gpt-secondary": secondary,
			"gpt-tertiary":  tertiary,
		})))
	require.NoError(t, err)
	defer r.Close()

	result := r.Invoke(context.Background(), llm.CompletionRequest{User: "case"})

	require.True(t, result.OK())
	assert.Equal(t, "served", result.Text)
	assert.Equal(t, "tertiary", result.Deployment)

	// One recorded failure per exhausted deployment, both rate limits.
	require.Len(t, result.Retries, 2)
	assert.Equal(t, FailureRateLimit, result.Retries[0].Kind)
	assert.Equal(t, "primary", result.Retries[0].Deployment)
	assert.Equal(t, FailureRateLimit, result.Retries[1].Kind)
	assert.Equal(t, "secondary", result.Retries[1].Deployment)

	// Rate limits are retried in place before rotation.
	assert.Equal(t, 2, primary.CallCount())
	assert.Equal(t, 2, secondary.CallCount())
	assert.Equal(t, 1, tertiary.CallCount())
}

func TestInvokeAuthFailureAborts(t *testing.T) {
	primary := llm.NewMockClient(llm.MockResponse{
		Err: &llm.AuthError{Message: "bad key", StatusCode: 401},
	})
	secondary := llm.NewMockClient(llm.MockResponse{Text: "never served"})

	r, err := New(testDeployments("primary", "secondary"),
		fastOptions(mockFactory(map[string]llm.Client{
			"gpt-primary":   primary,
			"gpt-secondary": secondary,
		})))
	require.NoError(t, err)
	defer r.Close()

	result := r.Invoke(context.Background(), llm.CompletionRequest{User: "case"})

	require.False(t, result.OK())
	require.NotNil(t, result.Failure)
	assert.Equal(t, FailureAuthError, result.Failure.Kind)
	assert.Equal(t, "primary", result.Failure.Deployment)
	assert.Empty(t, result.Retries)

	// Auth failures stop the call; nothing rotates to the next deployment.
	assert.Equal(t, 1, primary.CallCount())
	assert.Equal(t, 0, secondary.CallCount())
}

func TestInvokeServerErrorRotatesImmediately(t *testing.T) {
	primary := llm.NewMockClient(llm.MockResponse{
		Err: &llm.ServerError{Message: "upstream exploded", StatusCode: 503},
	})
	secondary := llm.NewMockClient(llm.MockResponse{Text: "served"})

	r, err := New(testDeployments("primary", "secondary"),
		fastOptions(mockFactory(map[string]llm.Client{
			"gpt-primary":   primary,
			"gpt-secondary": secondary,
		})))
	require.NoError(t, err)
	defer r.Close()

	result := r.Invoke(context.Background(), llm.CompletionRequest{User: "case"})

	require.True(t, result.OK())
	assert.Equal(t, "secondary", result.Deployment)

	// Server errors rotate without the in-place backoff rate limits get.
	assert.Equal(t, 1, primary.CallCount())
	require.Len(t, result.Retries, 1)
	assert.Equal(t, FailureServerError, result.Retries[0].Kind)
}

func TestInvokeExpiresAfterAllPasses(t *testing.T) {
	primary := llm.NewMockClient(llm.MockResponse{Err: &llm.RateLimitError{}})
	secondary := llm.NewMockClient(llm.MockResponse{Err: &llm.RateLimitError{}})

	opts := fastOptions(mockFactory(map[string]llm.Client{
		"gpt-primary":   primary,
		"gpt-secondary": secondary,
	}))
	opts.Retry.MaxAttempts = 1

	r, err := New(testDeployments("primary", "secondary"), opts)
	require.NoError(t, err)
	defer r.Close()

	result := r.Invoke(context.Background(), llm.CompletionRequest{User: "case"})

	require.False(t, result.OK())
	require.NotNil(t, result.Failure)
	assert.Equal(t, FailureRateLimit, result.Failure.Kind)
	assert.ErrorIs(t, result.Failure.Err, common.ErrRateLimit)
	assert.Contains(t, result.Failure.Err.Error(), "all deployments failed after 2 passes")

	// Two passes over two deployments, one attempt each.
	assert.Len(t, result.Retries, 4)
	assert.Equal(t, 2, primary.CallCount())
	assert.Equal(t, 2, secondary.CallCount())
}

func TestInvokeSpreadsCallsAcrossDeployments(t *testing.T) {
	first := llm.NewMockClient(llm.MockResponse{Text: "alpha"})
	second := llm.NewMockClient(llm.MockResponse{Text: "beta"})

	r, err := New(testDeployments("primary", "secondary"),
		fastOptions(mockFactory(map[string]llm.Client{
			"gpt-primary":   first,
			"gpt-secondary": second,
		})))
	require.NoError(t, err)
	defer r.Close()

	var served []string
	for i := 0; i < 3; i++ {
		result := r.Invoke(context.Background(), llm.CompletionRequest{User: "case"})
		require.True(t, result.OK())
		served = append(served, result.Text)
	}

	assert.Equal(t, []string{"alpha", "beta", "alpha"}, served)
}

func TestInvokeCanceledContext(t *testing.T) {
	primary := llm.NewMockClient(llm.MockResponse{Err: &llm.RateLimitError{}})

	r, err := New(testDeployments("primary"),
		fastOptions(mockFactory(map[string]llm.Client{"gpt-primary": primary})))
	require.NoError(t, err)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := r.Invoke(ctx, llm.CompletionRequest{User: "case"})

	require.False(t, result.OK())
	assert.Equal(t, FailureTimeout, result.Failure.Kind)
}

func TestFailureKindFatal(t *testing.T) {
	assert.True(t, FailureAuthError.Fatal())
	assert.True(t, FailureInvalidRequest.Fatal())
	assert.False(t, FailureRateLimit.Fatal())
	assert.False(t, FailureTimeout.Fatal())
	assert.False(t, FailureServerError.Fatal())
	assert.False(t, FailureMalformedOutput.Fatal())
}
