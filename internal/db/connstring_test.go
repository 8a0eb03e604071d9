package db

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/txretry/pkg/txretry"
)

func TestBuildConnectionString_ExplicitWins(t *testing.T) {
	cfg := &txretry.ConnectionConfig{
		ConnectionString: "postgres://a@b/c",
		Host:             "ignored",
	}
	assert.Equal(t, "postgres://a@b/c", BuildConnectionString(cfg))
}

func TestBuildConnectionString_Granular(t *testing.T) {
	cfg := &txretry.ConnectionConfig{
		Host:             "db.local",
		Port:             5433,
		Database:         "orders",
		Username:         "app",
		Password:         "p@ss word",
		SSLMode:          "require",
		ConnectTimeout:   7 * time.Second,
		AdditionalParams: map[string]string{"search_path": "app"},
	}

	u, err := url.Parse(BuildConnectionString(cfg))
	require.NoError(t, err)

	assert.Equal(t, "postgresql", u.Scheme)
	assert.Equal(t, "db.local:5433", u.Host)
	assert.Equal(t, "/orders", u.Path)
	assert.Equal(t, "app", u.User.Username())
	pw, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "p@ss word", pw)

	q := u.Query()
	assert.Equal(t, "require", q.Get("sslmode"))
	assert.Equal(t, "txretry", q.Get("application_name"))
	assert.Equal(t, "7", q.Get("connect_timeout"))
	assert.Equal(t, "app", q.Get("search_path"))
}

func TestBuildConnectionString_Minimal(t *testing.T) {
	cfg := &txretry.ConnectionConfig{Host: "localhost", Port: 5432, Database: "postgres", AppName: "billing"}

	u, err := url.Parse(BuildConnectionString(cfg))
	require.NoError(t, err)

	assert.Nil(t, u.User)
	assert.Equal(t, "billing", u.Query().Get("application_name"))
	assert.Empty(t, u.Query().Get("sslmode"))
	assert.Empty(t, u.Query().Get("connect_timeout"))
}
