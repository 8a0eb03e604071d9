package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vvka-141/txretry/internal/config"
	"github.com/vvka-141/txretry/pkg/txretry"
)

const (
	defaultHost    = "localhost"
	defaultPort    = 5432
	defaultSSLMode = "prefer"
)

// connectionFlags holds the common connection-related flag values.
type connectionFlags struct {
	connection     string
	host           string
	port           int
	username       string
	database       string
	sslMode        string
	azure          bool
	azureTenantID  string
	azureClientID  string
	aws            bool
	awsRegion      string
	google         bool
	googleInstance string
}

func (f connectionFlags) hasGranular() bool {
	return f.host != "" || f.port != 0 || f.username != ""
}

// connectionStringFromEnv returns the first non-empty connection string from
// TXRETRY_CONNECTION_STRING or DATABASE_URL environment variables.
func connectionStringFromEnv() string {
	if s := os.Getenv("TXRETRY_CONNECTION_STRING"); s != "" {
		return s
	}
	return os.Getenv("DATABASE_URL")
}

// resolveConnection merges flags, environment and txretry.yaml into a
// ConnectionConfig.
//
// A connection string (flag, then environment) supplies host, port, user and
// database and is mutually exclusive with --host, --port, --username and
// --database. Otherwise each field resolves as: flag > $PG* variable >
// txretry.yaml > default. Passwords are only read from $PGPASSWORD; pgx
// consults ~/.pgpass when none is set.
func resolveConnection(flags connectionFlags, projectCfg *config.ProjectConfig) (*txretry.ConnectionConfig, error) {
	if flags.connection != "" && flags.hasGranular() {
		return nil, fmt.Errorf("--connection cannot be combined with --host, --port or --username: %w", txretry.ErrInvalidConfig)
	}

	var fileCfg config.ConnectionConfig
	if projectCfg != nil {
		fileCfg = projectCfg.Connection
	}

	auth, err := resolveAuth(flags, fileCfg)
	if err != nil {
		return nil, err
	}

	connStr := flags.connection
	if connStr == "" && !flags.hasGranular() {
		connStr = connectionStringFromEnv()
	}

	var cfg *txretry.ConnectionConfig
	if connStr != "" {
		if flags.database != "" {
			return nil, fmt.Errorf("--database cannot be combined with a connection string; put the database in the URI: %w", txretry.ErrInvalidConfig)
		}
		cfg = &txretry.ConnectionConfig{ConnectionString: connStr}
	} else {
		cfg, err = resolveGranular(flags, fileCfg)
		if err != nil {
			return nil, err
		}
	}

	cfg.AuthMethod = auth
	cfg.AzureTenantID = firstNonEmpty(flags.azureTenantID, os.Getenv("AZURE_TENANT_ID"), fileCfg.AzureTenantID)
	cfg.AzureClientID = firstNonEmpty(flags.azureClientID, os.Getenv("AZURE_CLIENT_ID"), fileCfg.AzureClientID)
	cfg.AzureClientSecret = os.Getenv("AZURE_CLIENT_SECRET")
	cfg.AWSRegion = firstNonEmpty(flags.awsRegion, os.Getenv("AWS_REGION"), fileCfg.AWSRegion)
	cfg.GoogleInstance = firstNonEmpty(flags.googleInstance, fileCfg.GoogleInstance)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w\nProvide via:\n"+
			"  1. --database/-d flag: txretry exec -d mydb script.sql\n"+
			"  2. Connection string: txretry exec --connection \"postgresql://user@host/mydb\" script.sql\n"+
			"  3. Environment variable: export PGDATABASE=mydb", err)
	}
	return cfg, nil
}

// resolveAuth picks the authentication method. At most one of --azure,
// --aws and --google may be set; they override auth_method in txretry.yaml.
func resolveAuth(flags connectionFlags, fileCfg config.ConnectionConfig) (txretry.AuthMethod, error) {
	var selected []txretry.AuthMethod
	if flags.azure {
		selected = append(selected, txretry.AuthMethodAzureEntraID)
	}
	if flags.aws {
		selected = append(selected, txretry.AuthMethodAWSIAM)
	}
	if flags.google {
		selected = append(selected, txretry.AuthMethodGoogleIAM)
	}

	switch len(selected) {
	case 0:
		return txretry.ParseAuthMethod(fileCfg.AuthMethod)
	case 1:
		return selected[0], nil
	default:
		return txretry.AuthMethodStandard, fmt.Errorf("--azure, --aws and --google are mutually exclusive: %w", txretry.ErrInvalidConfig)
	}
}

func resolveGranular(flags connectionFlags, fileCfg config.ConnectionConfig) (*txretry.ConnectionConfig, error) {
	cfg := &txretry.ConnectionConfig{
		Host:     firstNonEmpty(flags.host, os.Getenv("PGHOST"), fileCfg.Host, defaultHost),
		Username: firstNonEmpty(flags.username, os.Getenv("PGUSER"), fileCfg.Username),
		Database: firstNonEmpty(flags.database, os.Getenv("PGDATABASE"), fileCfg.Database),
		Password: os.Getenv("PGPASSWORD"),
		SSLMode:  firstNonEmpty(flags.sslMode, os.Getenv("PGSSLMODE"), fileCfg.SSLMode, defaultSSLMode),
		AppName:  fileCfg.AppName,
	}

	switch {
	case flags.port != 0:
		cfg.Port = flags.port
	case os.Getenv("PGPORT") != "":
		port, err := strconv.Atoi(os.Getenv("PGPORT"))
		if err != nil {
			return nil, fmt.Errorf("invalid PGPORT %q: %w", os.Getenv("PGPORT"), txretry.ErrInvalidConfig)
		}
		cfg.Port = port
	case fileCfg.Port != 0:
		cfg.Port = fileCfg.Port
	default:
		cfg.Port = defaultPort
	}

	if fileCfg.ConnectTimeout != "" {
		d, err := time.ParseDuration(fileCfg.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid connect_timeout in %s: %w", config.ConfigFileName, txretry.ErrInvalidConfig)
		}
		cfg.ConnectTimeout = d
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
