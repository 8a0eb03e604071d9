package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vvka-141/txretry/internal/retry"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

type ConnectionConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"sslmode"`
	AppName        string `yaml:"application_name,omitempty"`
	ConnectTimeout string `yaml:"connect_timeout,omitempty"`
	AuthMethod     string `yaml:"auth_method,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

// RetryConfig mirrors retry.Policy. Unset fields leave the policy untouched.
type RetryConfig struct {
	MaxRetries   *int     `yaml:"max_retries,omitempty"`
	WaitTimes    []string `yaml:"wait_times,omitempty"`
	FallbackWait string   `yaml:"fallback_wait,omitempty"`
	Fuzz         *bool    `yaml:"fuzz,omitempty"`
	FuzzFloor    string   `yaml:"fuzz_floor,omitempty"`
	RetryOn      []string `yaml:"retry_on,omitempty"`
	Isolation    string   `yaml:"isolation,omitempty"`
}

type ProjectConfig struct {
	Connection ConnectionConfig `yaml:"connection"`
	Retry      RetryConfig      `yaml:"retry"`
	Timeout    string           `yaml:"timeout"`
}

const ConfigFileName = "txretry.yaml"

// Load reads txretry.yaml from dir.
func Load(dir string) (*ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a config file at an explicit path.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v: %w", path, err, txretry.ErrInvalidConfig)
	}
	return &cfg, nil
}

// ApplyTo copies every set field onto policy. Nothing is written when any
// field is invalid.
func (r RetryConfig) ApplyTo(policy *retry.Policy) error {
	var waits []time.Duration
	for _, s := range r.WaitTimes {
		d, err := parseDuration("wait_times", s)
		if err != nil {
			return err
		}
		waits = append(waits, d)
	}

	var fallback, floor time.Duration
	var err error
	if r.FallbackWait != "" {
		if fallback, err = parseDuration("fallback_wait", r.FallbackWait); err != nil {
			return err
		}
	}
	if r.FuzzFloor != "" {
		if floor, err = parseDuration("fuzz_floor", r.FuzzFloor); err != nil {
			return err
		}
	}

	kinds, err := r.Kinds()
	if err != nil {
		return err
	}

	if r.MaxRetries != nil && *r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative: %w", txretry.ErrInvalidConfig)
	}
	if _, err := txretry.NormalizeIsolation(r.Isolation); err != nil {
		return err
	}

	if r.MaxRetries != nil {
		if err := policy.SetMaxRetries(*r.MaxRetries); err != nil {
			return err
		}
	}
	if r.WaitTimes != nil {
		if err := policy.SetWaitTimes(waits); err != nil {
			return err
		}
	}
	if r.FallbackWait != "" {
		if err := policy.SetFallbackWait(fallback); err != nil {
			return err
		}
	}
	if r.FuzzFloor != "" {
		if err := policy.SetFuzzFloor(floor); err != nil {
			return err
		}
	}
	if r.Fuzz != nil {
		policy.SetFuzz(*r.Fuzz)
	}
	if r.RetryOn != nil {
		policy.SetRetryOn(kinds...)
	}
	return nil
}

// Kinds parses RetryOn into error kinds.
func (r RetryConfig) Kinds() ([]txretry.ErrorKind, error) {
	kinds := make([]txretry.ErrorKind, 0, len(r.RetryOn))
	for _, name := range r.RetryOn {
		k, err := txretry.ParseErrorKind(name)
		if err != nil {
			return nil, fmt.Errorf("retry_on: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, txretry.ErrInvalidConfig)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s %q cannot be negative: %w", field, s, txretry.ErrInvalidConfig)
	}
	return d, nil
}
