// Package config provides configuration utilities for the application.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chartwell-labs/second-opinion/internal/common"
	"github.com/chartwell-labs/second-opinion/internal/router"
	"github.com/chartwell-labs/second-opinion/internal/service"
	"github.com/spf13/viper"
)

// LoadDeployments reads the ordered model deployment list from Viper.
// The list is loaded once at startup and handed to the router as-is;
// nothing else reads deployment configuration after that.
//
// A deployment without an api_key in the config file falls back to the
// provider's conventional environment variable, so credentials can stay
// out of checked-in config:
//   - azure: AZURE_OPENAI_API_KEY
//   - anthropic: ANTHROPIC_API_KEY
func LoadDeployments() ([]router.DeploymentConfig, error) {
	var deployments []router.DeploymentConfig
	if err := viper.UnmarshalKey("deployments", &deployments); err != nil {
		return nil, fmt.Errorf("%w: deployments: %w", common.ErrInvalidConfig, err)
	}
	if len(deployments) == 0 {
		return nil, fmt.Errorf("%w: no deployments configured", common.ErrMissingConfig)
	}

	for i := range deployments {
		dep := &deployments[i]
		if dep.APIKey == "" {
			dep.APIKey = apiKeyFromEnv(dep.Provider)
		}
		if err := dep.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
		}
	}
	return deployments, nil
}

func apiKeyFromEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("AZURE_OPENAI_API_KEY")
	}
}

// LoadRouterOptions reads the failover tuning knobs from Viper, leaving
// zero values for anything unset so the router applies its own defaults.
func LoadRouterOptions() router.Options {
	opts := router.Options{
		MaxPasses:         viper.GetInt("router.max_passes"),
		PassDelay:         viper.GetDuration("router.pass_delay"),
		RequestsPerMinute: viper.GetInt("router.requests_per_minute"),
	}

	if viper.IsSet("router.retry.max_attempts") {
		opts.Retry = service.RetryOptions{
			MaxAttempts:  viper.GetInt("router.retry.max_attempts"),
			InitialDelay: viper.GetDuration("router.retry.initial_delay"),
			MaxDelay:     viper.GetDuration("router.retry.max_delay"),
			Multiplier:   viper.GetFloat64("router.retry.multiplier"),
		}
		if opts.Retry.InitialDelay == 0 {
			opts.Retry.InitialDelay = time.Second
		}
		if opts.Retry.MaxDelay == 0 {
			opts.Retry.MaxDelay = 30 * time.Second
		}
		if opts.Retry.Multiplier == 0 {
			opts.Retry.Multiplier = 2.0
		}
	}
	return opts
}
