package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("BROKER_URL", "http://broker.local")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "db.sqlite", cfg.Store.SQLitePath)
	assert.Equal(t, BrokerModeHTTP, cfg.Broker.Mode)
	assert.Equal(t, 5*time.Second, cfg.Authority.Timeout)
	assert.Equal(t, 1, cfg.Authority.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Authority.CacheTTL)
	assert.False(t, cfg.ValidateOnRead)
	assert.False(t, cfg.IsProduction())
}

func TestFromViperEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_USERNAME", "registry")
	t.Setenv("DB_DATABASE", "registry")
	t.Setenv("BROKER_MODE", "catalog")
	t.Setenv("BROKER_DSN", "postgres://broker@localhost/warehouse")
	t.Setenv("BROKER_SCHEMA", "sales")
	t.Setenv("AUTHORITY_TIMEOUT", "750ms")
	t.Setenv("AUTHORITY_CONCURRENCY", "8")
	t.Setenv("VALIDATE_ON_READ", "true")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "5432", cfg.Store.DBPort)
	assert.Equal(t, BrokerModeCatalog, cfg.Broker.Mode)
	assert.Equal(t, "sales", cfg.Broker.Schema)
	assert.Equal(t, 750*time.Millisecond, cfg.Authority.Timeout)
	assert.Equal(t, 8, cfg.Authority.Concurrency)
	assert.True(t, cfg.ValidateOnRead)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestFromViperValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{
			name: "postgres requires host",
			env:  map[string]string{"BROKER_URL": "http://broker"},
			want: "DB_HOST",
		},
		{
			name: "http mode requires url",
			env:  map[string]string{"STORE_DRIVER": "sqlite"},
			want: "BROKER_URL",
		},
		{
			name: "catalog mode requires dsn",
			env:  map[string]string{"STORE_DRIVER": "sqlite", "BROKER_MODE": "catalog"},
			want: "BROKER_DSN",
		},
		{
			name: "unknown driver",
			env:  map[string]string{"STORE_DRIVER": "mongo", "BROKER_URL": "http://broker"},
			want: "STORE_DRIVER",
		},
		{
			name: "concurrency at least one",
			env:  map[string]string{"STORE_DRIVER": "sqlite", "BROKER_URL": "http://broker", "AUTHORITY_CONCURRENCY": "0"},
			want: "AUTHORITY_CONCURRENCY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromViper(viper.New())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
