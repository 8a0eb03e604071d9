package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/txretry/internal/config"
	"github.com/vvka-141/txretry/internal/retry"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// retryFlags holds the policy overrides accepted on the command line.
// maxRetries and fallbackWait apply only when their *Set field is true;
// the other fields treat their zero value as "not given".
type retryFlags struct {
	maxRetries      int
	maxRetriesSet   bool
	waitTimes       []time.Duration
	fallbackWait    time.Duration
	fallbackWaitSet bool
	noFuzz          bool
	retryOn         []string
	isolation       string
}

// markChangedRetryFlags flags the numeric overrides given explicitly on cmd,
// so that 0 or a negative value reaches validation.
func markChangedRetryFlags(cmd *cobra.Command, flags retryFlags) retryFlags {
	flags.maxRetriesSet = flags.maxRetriesSet || cmd.Flags().Changed("max-retries")
	flags.fallbackWaitSet = flags.fallbackWaitSet || cmd.Flags().Changed("fallback-wait")
	return flags
}

// loadProjectConfig loads .env and the project configuration.
// Without an explicit path a missing ./txretry.yaml is not an error.
func loadProjectConfig(configPath string) (*config.ProjectConfig, error) {
	_ = godotenv.Load()

	if configPath != "" {
		cfg, err := config.LoadFile(configPath)
		if err != nil {
			if errors.Is(err, config.ErrConfigNotFound) {
				return nil, fmt.Errorf("config file %s not found: %w", configPath, txretry.ErrInvalidConfig)
			}
			return nil, err
		}
		return cfg, nil
	}

	projectCfg, err := config.Load(".")
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w", config.ConfigFileName, err)
	}
	return projectCfg, nil
}

// resolveEffectiveTimeout returns the effective timeout, preferring txretry.yaml if flag wasn't set.
func resolveEffectiveTimeout(
	cmd *cobra.Command,
	projectCfg *config.ProjectConfig,
	flagTimeout time.Duration,
) (time.Duration, error) {
	if projectCfg != nil && projectCfg.Timeout != "" && !cmd.Flags().Changed("timeout") {
		parsed, err := time.ParseDuration(projectCfg.Timeout)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout in %s: %w", config.ConfigFileName, txretry.ErrInvalidConfig)
		}
		return parsed, nil
	}
	return flagTimeout, nil
}

// buildPolicy layers txretry.yaml and then flags over the default policy.
// It also returns the effective isolation level name.
func buildPolicy(flags retryFlags, projectCfg *config.ProjectConfig) (*retry.Policy, string, error) {
	policy := retry.NewPolicy()
	isolation := ""

	if projectCfg != nil {
		if err := projectCfg.Retry.ApplyTo(policy); err != nil {
			return nil, "", fmt.Errorf("invalid retry section in %s: %w", config.ConfigFileName, err)
		}
		isolation = projectCfg.Retry.Isolation
	}

	if flags.maxRetriesSet {
		if err := policy.SetMaxRetries(flags.maxRetries); err != nil {
			return nil, "", err
		}
	}
	if len(flags.waitTimes) > 0 {
		if err := policy.SetWaitTimes(flags.waitTimes); err != nil {
			return nil, "", err
		}
	}
	if flags.fallbackWaitSet {
		if err := policy.SetFallbackWait(flags.fallbackWait); err != nil {
			return nil, "", err
		}
	}
	if flags.noFuzz {
		policy.SetFuzz(false)
	}
	if len(flags.retryOn) > 0 {
		kinds, err := config.RetryConfig{RetryOn: flags.retryOn}.Kinds()
		if err != nil {
			return nil, "", err
		}
		policy.SetRetryOn(kinds...)
	}
	if flags.isolation != "" {
		isolation = flags.isolation
	}

	normalized, err := txretry.NormalizeIsolation(isolation)
	if err != nil {
		return nil, "", err
	}
	return policy, normalized, nil
}
