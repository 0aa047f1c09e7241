package config

import (
	"errors"
	"testing"
	"time"

	"github.com/chartwell-labs/second-opinion/internal/common"
	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDeployments(t *testing.T) {
	resetViper(t)
	viper.Set("deployments", []map[string]any{
		{
			"name":        "primary-eastus",
			"provider":    "azure",
			"endpoint":    "https://primary.openai.azure.com/",
			"api_key":     "test-key-1",
			"model":       "gpt-4o",
			"api_version": "2024-02-15-preview",
			"max_tokens":  4096,
		},
		{
			"name":     "fallback-anthropic",
			"provider": "anthropic",
			"api_key":  "test-key-2",
			"model":    "claude-sonnet-4-20250514",
		},
	})

	deployments, err := LoadDeployments()
	if err != nil {
		t.Fatalf("LoadDeployments() error = %v", err)
	}
	if len(deployments) != 2 {
		t.Fatalf("expected 2 deployments, got %d", len(deployments))
	}
	if deployments[0].Name != "primary-eastus" {
		t.Errorf("expected first deployment primary-eastus, got %s", deployments[0].Name)
	}
	if deployments[0].Endpoint != "https://primary.openai.azure.com/" {
		t.Errorf("unexpected endpoint %s", deployments[0].Endpoint)
	}
	if deployments[1].Provider != "anthropic" {
		t.Errorf("expected anthropic provider, got %s", deployments[1].Provider)
	}
}

func TestLoadDeployments_APIKeyFromEnvironment(t *testing.T) {
	resetViper(t)
	t.Setenv("AZURE_OPENAI_API_KEY", "env-azure-key")
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	viper.Set("deployments", []map[string]any{
		{
			"name":     "primary-eastus",
			"provider": "azure",
			"endpoint": "https://primary.openai.azure.com/",
			"model":    "gpt-4o",
		},
		{
			"name":     "fallback-anthropic",
			"provider": "anthropic",
		},
	})

	deployments, err := LoadDeployments()
	if err != nil {
		t.Fatalf("LoadDeployments() error = %v", err)
	}
	if deployments[0].APIKey != "env-azure-key" {
		t.Errorf("expected azure key from environment, got %q", deployments[0].APIKey)
	}
	if deployments[1].APIKey != "env-anthropic-key" {
		t.Errorf("expected anthropic key from environment, got %q", deployments[1].APIKey)
	}
}

func TestLoadDeployments_ConfigKeyWinsOverEnvironment(t *testing.T) {
	resetViper(t)
	t.Setenv("AZURE_OPENAI_API_KEY", "env-key")
	viper.Set("deployments", []map[string]any{
		{
			"name":     "primary-eastus",
			"provider": "azure",
			"endpoint": "https://primary.openai.azure.com/",
			"api_key":  "file-key",
			"model":    "gpt-4o",
		},
	})

	deployments, err := LoadDeployments()
	if err != nil {
		t.Fatalf("LoadDeployments() error = %v", err)
	}
	if deployments[0].APIKey != "file-key" {
		t.Errorf("config file key should win, got %q", deployments[0].APIKey)
	}
}

func TestLoadDeployments_Empty(t *testing.T) {
	resetViper(t)

	_, err := LoadDeployments()
	if !errors.Is(err, common.ErrMissingConfig) {
		t.Errorf("expected ErrMissingConfig, got %v", err)
	}
}

func TestLoadDeployments_InvalidDeployment(t *testing.T) {
	resetViper(t)
	viper.Set("deployments", []map[string]any{
		{
			"name":     "broken",
			"provider": "azure",
			"api_key":  "key",
			// no endpoint, no model
		},
	})

	_, err := LoadDeployments()
	if !errors.Is(err, common.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadRouterOptions_Defaults(t *testing.T) {
	resetViper(t)

	opts := LoadRouterOptions()
	if opts.MaxPasses != 0 {
		t.Errorf("unset max_passes should stay zero, got %d", opts.MaxPasses)
	}
	if opts.Retry.MaxAttempts != 0 {
		t.Errorf("unset retry should stay zero, got %+v", opts.Retry)
	}
}

func TestLoadRouterOptions_Configured(t *testing.T) {
	resetViper(t)
	viper.Set("router.max_passes", 3)
	viper.Set("router.pass_delay", "15s")
	viper.Set("router.requests_per_minute", 120)
	viper.Set("router.retry.max_attempts", 4)

	opts := LoadRouterOptions()
	if opts.MaxPasses != 3 {
		t.Errorf("expected 3 passes, got %d", opts.MaxPasses)
	}
	if opts.PassDelay != 15*time.Second {
		t.Errorf("expected 15s pass delay, got %s", opts.PassDelay)
	}
	if opts.RequestsPerMinute != 120 {
		t.Errorf("expected 120 rpm, got %d", opts.RequestsPerMinute)
	}
	if opts.Retry.MaxAttempts != 4 {
		t.Errorf("expected 4 retry attempts, got %d", opts.Retry.MaxAttempts)
	}
	if opts.Retry.InitialDelay != time.Second {
		t.Errorf("expected default initial delay, got %s", opts.Retry.InitialDelay)
	}
	if opts.Retry.Multiplier != 2.0 {
		t.Errorf("expected default multiplier, got %f", opts.Retry.Multiplier)
	}
}
