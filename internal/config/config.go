package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	BrokerModeHTTP    = "http"
	BrokerModeCatalog = "catalog"
)

type Config struct {
	Port               int      `mapstructure:"port"`
	AppEnv             string   `mapstructure:"app_env"`
	LogLevel           string   `mapstructure:"log_level"`
	CORSAllowedOrigins []string `mapstructure:"-"`

	Store     StoreConfig     `mapstructure:",squash"`
	Broker    BrokerConfig    `mapstructure:",squash"`
	Authority AuthorityConfig `mapstructure:",squash"`
	Redis     RedisConfig     `mapstructure:",squash"`

	// ValidateOnRead repairs a queryset against the broker before every detail read.
	ValidateOnRead bool `mapstructure:"validate_on_read"`
}

type StoreConfig struct {
	Driver     string `mapstructure:"store_driver"`
	DBHost     string `mapstructure:"db_host"`
	DBPort     string `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_username"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_database"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type BrokerConfig struct {
	Mode   string `mapstructure:"broker_mode"`
	URL    string `mapstructure:"broker_url"`
	DSN    string `mapstructure:"broker_dsn"`
	Schema string `mapstructure:"broker_schema"`
}

type AuthorityConfig struct {
	Timeout     time.Duration `mapstructure:"authority_timeout"`
	Concurrency int           `mapstructure:"authority_concurrency"`
	CacheTTL    time.Duration `mapstructure:"authority_cache_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"redis_addr"`
	Password string `mapstructure:"redis_password"`
	DB       int    `mapstructure:"redis_db"`
}

var keys = []string{
	"port", "app_env", "log_level", "cors_allowed_origins", "validate_on_read",
	"store_driver", "db_host", "db_port", "db_username", "db_password", "db_database", "sqlite_path",
	"broker_mode", "broker_url", "broker_dsn", "broker_schema",
	"authority_timeout", "authority_concurrency", "authority_cache_ttl",
	"redis_addr", "redis_password", "redis_db",
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromViper(viper.New())
}

// FromViper builds the configuration from an existing viper instance. Keys
// are bound to upper-cased environment variables of the same name.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetDefault("port", 8080)
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("validate_on_read", false)
	v.SetDefault("store_driver", StoreDriverPostgres)
	v.SetDefault("db_port", "5432")
	v.SetDefault("sqlite_path", "db.sqlite")
	v.SetDefault("broker_mode", BrokerModeHTTP)
	v.SetDefault("broker_schema", "public")
	v.SetDefault("authority_timeout", 5*time.Second)
	v.SetDefault("authority_concurrency", 1)
	v.SetDefault("authority_cache_ttl", 30*time.Second)

	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.CORSAllowedOrigins = splitList(v.GetString("cors_allowed_origins"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.DBHost == "" {
			return errors.New("DB_HOST environment variable is required")
		}
		if c.Store.DBUser == "" {
			return errors.New("DB_USERNAME environment variable is required")
		}
		if c.Store.DBName == "" {
			return errors.New("DB_DATABASE environment variable is required")
		}
	case StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("SQLITE_PATH must not be empty")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Broker.Mode {
	case BrokerModeHTTP:
		if c.Broker.URL == "" {
			return errors.New("BROKER_URL environment variable is required in http mode")
		}
	case BrokerModeCatalog:
		if c.Broker.DSN == "" {
			return errors.New("BROKER_DSN environment variable is required in catalog mode")
		}
	default:
		return fmt.Errorf("unsupported BROKER_MODE %q", c.Broker.Mode)
	}

	if c.Authority.Timeout <= 0 {
		return errors.New("AUTHORITY_TIMEOUT must be positive")
	}
	if c.Authority.Concurrency < 1 {
		return errors.New("AUTHORITY_CONCURRENCY must be at least 1")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
