package db

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/txretry/internal/retry"
	"github.com/vvka-141/txretry/pkg/txretry"
)

// Connection pool configuration constants
const (
	// DefaultMaxConns limits concurrent connections per process.
	DefaultMaxConns = 5

	// DefaultMinConns maintains at least one connection in the pool.
	DefaultMinConns = 1

	// DefaultMaxConnIdleTime keeps connections around between retries.
	DefaultMaxConnIdleTime = 30 * time.Minute
)

// Connection retry defaults. Establishing the pool is retried on
// connection-level failures with a short schedule.
const (
	DefaultConnectRetries      = 3
	DefaultConnectFallbackWait = 2 * time.Second
)

var defaultConnectWaitTimes = []time.Duration{
	100 * time.Millisecond,
	400 * time.Millisecond,
	1 * time.Second,
}

// connectRetryKinds are retried while establishing a pool.
var connectRetryKinds = []txretry.ErrorKind{
	txretry.KindConnectionException,
	txretry.KindInsufficientResources,
	txretry.KindOperatorIntervention,
}

func configurePool(poolConfig *pgxpool.Config, logger txretry.Logger) {
	poolConfig.MaxConns = DefaultMaxConns
	poolConfig.MinConns = DefaultMinConns
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		if logger != nil {
			logger.Info("%s: %s", notice.Severity, notice.Message)
		}
	}
}

// StandardConnector opens a pgx pool with automatic retry on transient
// connection failures. Cloud authentication plugs in through a TokenProvider
// (password per new connection) or a Cloud SQL dialer.
type StandardConnector struct {
	config        *txretry.ConnectionConfig
	logger        txretry.Logger
	retryExecutor *retry.Executor
	retryOpts     []retry.ExecutorOption
	tokenProvider TokenProvider
	cloudSQL      *cloudsqlconn.Dialer
}

// ConnectorOption is a functional option for configuring StandardConnector.
type ConnectorOption func(*StandardConnector)

// WithRetryOptions passes options to the connection retry executor,
// e.g. retry.WithSleeper in tests.
func WithRetryOptions(opts ...retry.ExecutorOption) ConnectorOption {
	return func(c *StandardConnector) {
		c.retryOpts = append(c.retryOpts, opts...)
	}
}

// WithTokenProvider makes every new pool connection authenticate with a
// fresh token from p.
func WithTokenProvider(p TokenProvider) ConnectorOption {
	return func(c *StandardConnector) {
		c.tokenProvider = p
	}
}

// NewStandardConnector creates a StandardConnector. logger may be nil.
func NewStandardConnector(config *txretry.ConnectionConfig, logger txretry.Logger, opts ...ConnectorOption) *StandardConnector {
	c := &StandardConnector{
		config: config,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	policy := retry.NewPolicy()
	_ = policy.SetMaxRetries(DefaultConnectRetries)
	_ = policy.SetWaitTimes(defaultConnectWaitTimes)
	_ = policy.SetFallbackWait(DefaultConnectFallbackWait)
	_ = policy.SetFuzzFloor(50 * time.Millisecond)
	policy.SetRetryOn(connectRetryKinds...)

	c.retryExecutor = retry.NewExecutor(retry.NewDirect(logger), policy, c.retryOpts...)
	return c
}

// NewConnector builds a StandardConnector for config.AuthMethod.
func NewConnector(config *txretry.ConnectionConfig, logger txretry.Logger, opts ...ConnectorOption) (*StandardConnector, error) {
	switch config.AuthMethod {
	case txretry.AuthMethodStandard, txretry.AuthMethodGoogleIAM:
	case txretry.AuthMethodAzureEntraID:
		var provider TokenProvider
		var err error
		if config.AzureTenantID != "" && config.AzureClientID != "" && config.AzureClientSecret != "" {
			provider, err = NewAzureServicePrincipalProvider(config.AzureTenantID, config.AzureClientID, config.AzureClientSecret)
		} else {
			provider, err = NewAzureDefaultCredentialProvider()
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", txretry.ErrInvalidConfig, err)
		}
		opts = append(opts, WithTokenProvider(provider))
	case txretry.AuthMethodAWSIAM:
		host, port, user, err := endpointOf(config)
		if err != nil {
			return nil, err
		}
		provider, err := NewAWSIAMTokenProvider(net.JoinHostPort(host, strconv.Itoa(port)), config.AWSRegion, user)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", txretry.ErrInvalidConfig, err)
		}
		opts = append(opts, WithTokenProvider(provider))
	default:
		return nil, fmt.Errorf("%s: %w", config.AuthMethod, txretry.ErrUnsupportedAuthMethod)
	}
	return NewStandardConnector(config, logger, opts...), nil
}

// endpointOf returns host, port and user, reading them from the connection
// string when one is set.
func endpointOf(config *txretry.ConnectionConfig) (string, int, string, error) {
	if config.ConnectionString == "" {
		return config.Host, config.Port, config.Username, nil
	}
	parsed, err := pgconn.ParseConfig(config.ConnectionString)
	if err != nil {
		return "", 0, "", fmt.Errorf("failed to parse connection string: %v: %w", err, txretry.ErrInvalidConfig)
	}
	return parsed.Host, int(parsed.Port), parsed.User, nil
}

// Connect establishes a connection pool and pings it, retrying transient
// failures. The caller owns the returned pool and must call Close on the
// connector after closing it.
func (c *StandardConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := c.poolConfig(ctx)
	if err != nil {
		return nil, err
	}

	host, port, database := poolConfig.ConnConfig.Host, int(poolConfig.ConnConfig.Port), poolConfig.ConnConfig.Database

	pool, err := retry.Run(ctx, c.retryExecutor, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, wrapConnectionError(err, host, port, database)
		}

		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, wrapConnectionError(err, host, port, database)
		}

		return pool, nil
	})
	if err != nil {
		c.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: %w", txretry.ErrConnectionFailed, err)
	}

	return pool, nil
}

// Close releases the Cloud SQL dialer, if one was created.
func (c *StandardConnector) Close() error {
	if c.cloudSQL != nil {
		err := c.cloudSQL.Close()
		c.cloudSQL = nil
		return err
	}
	return nil
}

func (c *StandardConnector) poolConfig(ctx context.Context) (*pgxpool.Config, error) {
	var connStr string
	if c.config.AuthMethod == txretry.AuthMethodGoogleIAM {
		// The Cloud SQL dialer handles TLS; host is only a label here.
		connStr = fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable application_name=%s",
			quoteDSNValue(c.config.GoogleInstance), quoteDSNValue(c.config.Username),
			quoteDSNValue(c.config.Database), quoteDSNValue(appNameOf(c.config)))
	} else {
		connStr = BuildConnectionString(c.config)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %v: %w", err, txretry.ErrInvalidConfig)
	}
	configurePool(poolConfig, c.logger)

	if c.config.AuthMethod == txretry.AuthMethodGoogleIAM {
		dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
		if err != nil {
			return nil, fmt.Errorf("failed to create Cloud SQL dialer: %v: %w", err, txretry.ErrInvalidConfig)
		}
		c.cloudSQL = dialer
		instance := c.config.GoogleInstance
		poolConfig.ConnConfig.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.Dial(ctx, instance)
		}
	}

	if c.tokenProvider != nil {
		poolConfig.BeforeConnect = c.injectToken
	}
	return poolConfig, nil
}

// injectToken runs before every new pool connection so long-lived pools
// never reuse an expired token.
func (c *StandardConnector) injectToken(ctx context.Context, connConfig *pgx.ConnConfig) error {
	token, expiresOn, err := c.tokenProvider.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire token from %s: %w", c.tokenProvider, err)
	}
	if remaining := time.Until(expiresOn); remaining < tokenExpiryWarning && c.logger != nil {
		c.logger.Warn("%s token expires in %v", c.tokenProvider, remaining.Round(time.Second))
	}
	connConfig.Password = token
	return nil
}

func appNameOf(config *txretry.ConnectionConfig) string {
	if config.AppName != "" {
		return config.AppName
	}
	return txretry.DefaultApplicationName
}

// quoteDSNValue quotes a keyword/value DSN value.
func quoteDSNValue(v string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}

// wrapConnectionError wraps raw pgx connection errors with actionable guidance.
func wrapConnectionError(err error, host string, port int, database string) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`connection refused to %s

Possible causes:
  - PostgreSQL is not running (check: pg_isready -h %s -p %d)
  - Wrong host or port
  - Firewall blocking the connection

Original error: %w`, addr, host, port, err)

	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no host"):
		return fmt.Errorf(`cannot resolve host "%s"

Possible causes:
  - Hostname is misspelled
  - DNS is not configured or reachable

Original error: %w`, host, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`password authentication failed for database "%s"

Possible causes:
  - Wrong password (check $PGPASSWORD or the .env file)
  - Wrong username

Original error: %w`, database, err)

	case strings.Contains(errStr, "does not exist"):
		return fmt.Errorf(`database "%s" does not exist

To create it:
  createdb %s

Original error: %w`, database, database, err)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return fmt.Errorf(`connection timed out to %s

Possible causes:
  - Server is overloaded or unresponsive
  - Firewall silently dropping packets

Original error: %w`, addr, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`too many connections to database "%s"

Possible causes:
  - max_connections limit reached in postgresql.conf
  - Other clients holding idle connections

Original error: %w`, database, err)

	default:
		return fmt.Errorf("failed to connect to database: %w", err)
	}
}
