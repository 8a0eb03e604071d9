package db

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/vvka-141/txretry/pkg/txretry"
)

// BuildConnectionString renders config as a postgresql:// URI.
// An explicit ConnectionString is returned unchanged.
func BuildConnectionString(config *txretry.ConnectionConfig) string {
	if config.ConnectionString != "" {
		return config.ConnectionString
	}

	u := &url.URL{
		Scheme: "postgresql",
		Host:   fmt.Sprintf("%s:%d", config.Host, config.Port),
		Path:   "/" + config.Database,
	}

	if config.Username != "" {
		if config.Password != "" {
			u.User = url.UserPassword(config.Username, config.Password)
		} else {
			u.User = url.User(config.Username)
		}
	}

	query := url.Values{}
	if config.SSLMode != "" {
		query.Set("sslmode", config.SSLMode)
	}
	appName := config.AppName
	if appName == "" {
		appName = txretry.DefaultApplicationName
	}
	query.Set("application_name", appName)
	if config.ConnectTimeout > 0 {
		query.Set("connect_timeout", strconv.Itoa(int(config.ConnectTimeout.Seconds())))
	}

	for key, value := range config.AdditionalParams {
		query.Set(key, value)
	}

	u.RawQuery = query.Encode()
	return u.String()
}
