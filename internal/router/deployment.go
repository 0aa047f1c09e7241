// Package router routes prompts across the configured model deployments.
// Rate limits are retried in place with backoff; other retryable failures
// rotate to the next deployment; fatal ones abort the call. Each call runs
// a small explicit state machine, and the only state shared between calls
// is a round-robin cursor that spreads load while every deployment is
// healthy.
package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/chartwell-labs/second-opinion/internal/llm"
)

// DeploymentConfig describes one callable model backend. The deployment
// list is loaded once at startup and passed to the router as an immutable
// ordered list; nothing mutates it afterwards.
type DeploymentConfig struct {
	Name       string        `mapstructure:"name"`
	Provider   string        `mapstructure:"provider"`
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	APIVersion string        `mapstructure:"api_version"`
	MaxTokens  int           `mapstructure:"max_tokens"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// Validate checks that the deployment carries what its provider needs.
func (d *DeploymentConfig) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("deployment is missing a name")
	}
	if d.APIKey == "" {
		return fmt.Errorf("deployment %s is missing an api_key", d.Name)
	}

	switch strings.ToLower(d.Provider) {
	case "azure", "":
		if d.Endpoint == "" {
			return fmt.Errorf("deployment %s is missing an endpoint", d.Name)
		}
		if d.Model == "" {
			return fmt.Errorf("deployment %s is missing a model", d.Name)
		}
	case "anthropic":
		// The SDK knows its own endpoint; only the model is optional.
	default:
		return fmt.Errorf("deployment %s has unsupported provider %q", d.Name, d.Provider)
	}
	return nil
}

// ClientConfig translates the deployment into the llm package's settings.
func (d *DeploymentConfig) ClientConfig() llm.Config {
	return llm.Config{
		Provider:   d.Provider,
		APIKey:     d.APIKey,
		Endpoint:   d.Endpoint,
		Model:      d.Model,
		APIVersion: d.APIVersion,
		MaxTokens:  d.MaxTokens,
	}
}

// timeout returns the per-call deadline, defaulting to a minute.
func (d *DeploymentConfig) timeout() time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return 60 * time.Second
}
