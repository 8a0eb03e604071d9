package txretry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConnectionConfig holds the parameters needed to reach PostgreSQL.
// When ConnectionString is set it takes precedence over the granular fields.
type ConnectionConfig struct {
	ConnectionString string

	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// Additional connection parameters
	AppName          string
	ConnectTimeout   time.Duration
	AdditionalParams map[string]string

	// AuthMethod selects how the password is obtained.
	AuthMethod AuthMethod

	// Azure Entra ID. With tenant, client and secret all set a service
	// principal is used; otherwise the DefaultAzureCredential chain.
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string

	// AWS RDS IAM
	AWSRegion string

	// Google Cloud SQL instance connection name (project:region:instance)
	GoogleInstance string
}

// AuthMethod represents the type of authentication to use.
type AuthMethod int

const (
	AuthMethodStandard     AuthMethod = iota // Username/Password
	AuthMethodAWSIAM                         // AWS IAM Database Authentication
	AuthMethodGoogleIAM                      // Google Cloud SQL IAM
	AuthMethodAzureEntraID                   // Azure Active Directory (Entra ID)
)

// String returns the configuration name of the AuthMethod.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodStandard:
		return "standard"
	case AuthMethodAWSIAM:
		return "aws"
	case AuthMethodGoogleIAM:
		return "google"
	case AuthMethodAzureEntraID:
		return "azure"
	default:
		return fmt.Sprintf("AuthMethod(%d)", int(a))
	}
}

// ParseAuthMethod converts a configuration value into an AuthMethod.
// The empty string means standard authentication.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard", "password":
		return AuthMethodStandard, nil
	case "aws", "aws_iam", "aws-iam":
		return AuthMethodAWSIAM, nil
	case "google", "google_iam", "google-iam", "gcp":
		return AuthMethodGoogleIAM, nil
	case "azure", "entra", "azure_entra_id":
		return AuthMethodAzureEntraID, nil
	}
	return AuthMethodStandard, fmt.Errorf("%q: %w", s, ErrUnsupportedAuthMethod)
}

// Validate checks that enough information is present to build a DSN.
func (c *ConnectionConfig) Validate() error {
	if c.ConnectionString != "" {
		return nil
	}

	var errs []error
	if c.AuthMethod == AuthMethodGoogleIAM {
		if c.GoogleInstance == "" {
			errs = append(errs, fmt.Errorf("google instance (project:region:instance) is required: %w", ErrInvalidConfig))
		}
	} else {
		if c.Host == "" {
			errs = append(errs, fmt.Errorf("host is required: %w", ErrInvalidConfig))
		}
		if c.Port <= 0 || c.Port > 65535 {
			errs = append(errs, fmt.Errorf("port %d out of range: %w", c.Port, ErrInvalidConfig))
		}
	}
	if c.Database == "" {
		errs = append(errs, fmt.Errorf("database is required: %w", ErrInvalidConfig))
	}

	switch c.AuthMethod {
	case AuthMethodStandard:
	case AuthMethodAWSIAM:
		if c.AWSRegion == "" {
			errs = append(errs, fmt.Errorf("aws region is required for IAM authentication: %w", ErrInvalidConfig))
		}
		fallthrough
	case AuthMethodGoogleIAM, AuthMethodAzureEntraID:
		if c.Username == "" {
			errs = append(errs, fmt.Errorf("username is required for %s authentication: %w", c.AuthMethod, ErrInvalidConfig))
		}
	default:
		errs = append(errs, fmt.Errorf("%s: %w", c.AuthMethod, ErrUnsupportedAuthMethod))
	}
	return errors.Join(errs...)
}

// ExecConfig describes one `txretry exec` invocation.
type ExecConfig struct {
	// Files are executed in order inside a single transaction.
	Files []string

	// Isolation is the isolation level of the outermost transaction.
	Isolation string

	// Timeout bounds the whole invocation including retries. Zero means none.
	Timeout time.Duration

	Verbose bool
}

// Validate checks the ExecConfig for missing or inconsistent values.
func (c *ExecConfig) Validate() error {
	var errs []error

	if len(c.Files) == 0 {
		errs = append(errs, fmt.Errorf("at least one SQL file is required: %w", ErrInvalidConfig))
	}
	if _, err := NormalizeIsolation(c.Isolation); err != nil {
		errs = append(errs, err)
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout cannot be negative: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

var isolationLevels = map[string]struct{}{
	"serializable":     {},
	"repeatable read":  {},
	"read committed":   {},
	"read uncommitted": {},
}

// NormalizeIsolation lowercases and validates an isolation level name.
// Underscores and dashes are accepted in place of spaces.
func NormalizeIsolation(s string) (string, error) {
	if s == "" {
		return DefaultIsolation, nil
	}
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	if _, ok := isolationLevels[name]; !ok {
		return "", fmt.Errorf("unknown isolation level %q: %w", s, ErrInvalidConfig)
	}
	return name, nil
}
