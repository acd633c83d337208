// Package config loads artsel settings from defaults, an optional config file
// and ARTSEL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/artsel/pkg/artwork"
	"github.com/Sternrassler/artsel/pkg/client"
	"github.com/Sternrassler/artsel/pkg/logging"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ARTSEL_API_PAGE_SIZE.
const EnvPrefix = "ARTSEL"

// Config holds application configuration.
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Retry  RetryConfig  `mapstructure:"retry"`
}

// APIConfig describes the upstream artworks API.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	PageSize  int           `mapstructure:"page_size"`
	Fields    []string      `mapstructure:"fields"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds the page cache backend. An empty Addr disables it.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
	File   string `mapstructure:"file"`
}

// RetryConfig overrides the client's per-class retry defaults. Zero keeps them.
type RetryConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
}

// New returns a viper instance with defaults and env overrides registered.
// Callers may bind command-line flags to it before Load.
func New() *viper.Viper {
	v := viper.New()

	// default values
	v.SetDefault("api.base_url", client.DefaultBaseURL)
	v.SetDefault("api.page_size", client.DefaultPageSize)
	v.SetDefault("api.fields", artwork.DefaultFields)
	v.SetDefault("api.user_agent", "artsel/1.0 (+https://github.com/Sternrassler/artsel)")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", string(logging.LevelInfo))
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.initial_backoff", time.Duration(0))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file and decodes v. An explicit path must exist; without
// one, $ARTSEL_CONFIG or ~/.config/artsel/config.{yaml,toml,json} is read when present.
func Load(v *viper.Viper, path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "artsel"))
		}
		v.SetConfigName("config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url: invalid url %q", c.API.BaseURL))
	}
	if c.API.PageSize < 1 || c.API.PageSize > client.MaxPageSize {
		errs = append(errs, fmt.Errorf("api.page_size: must be between 1 and %d (got %d)", client.MaxPageSize, c.API.PageSize))
	}
	if strings.TrimSpace(c.API.UserAgent) == "" {
		errs = append(errs, errors.New("api.user_agent: required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout: must be positive (got %s)", c.API.Timeout))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis.db: must be >= 0 (got %d)", c.Redis.DB))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry.max_attempts: must be >= 0 (got %d)", c.Retry.MaxAttempts))
	}
	if c.Retry.InitialBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry.initial_backoff: must be >= 0 (got %s)", c.Retry.InitialBackoff))
	}
	if err := logging.ValidateLevel(logging.LogLevel(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// ClientConfig maps the API, retry and user agent settings onto a client config.
// The redis client is supplied by the caller.
func (c Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL:        c.API.BaseURL,
		PageSize:       c.API.PageSize,
		Fields:         c.API.Fields,
		UserAgent:      c.API.UserAgent,
		Timeout:        c.API.Timeout,
		MaxAttempts:    c.Retry.MaxAttempts,
		InitialBackoff: c.Retry.InitialBackoff,
	}
}

// LoggingConfig maps the log settings onto a logging config.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	cfg.File = c.Log.File
	return cfg
}
