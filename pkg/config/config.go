package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all runtime settings. Defaults mirror the docker-compose setup.
type Config struct {
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// json or text
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	DB DBConfig

	Goodreads GoodreadsConfig

	SearchLimit int `env:"SEARCH_LIMIT" envDefault:"10"`
}

type DBConfig struct {
	Driver   string `env:"DB_DRIVER" envDefault:"postgres"`
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"postgres"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"program"`
	Password string `env:"DB_PASSWORD" envDefault:"test"`
	Name     string `env:"DB_NAME" envDefault:"books"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`

	ConnectRetries int           `env:"DB_CONNECT_RETRIES" envDefault:"10"`
	ConnectBackoff time.Duration `env:"DB_CONNECT_BACKOFF" envDefault:"5s"`
}

type GoodreadsConfig struct {
	Key     string        `env:"GOODREADS_KEY"`
	BaseURL string        `env:"GOODREADS_BASE_URL" envDefault:"https://www.goodreads.com"`
	Timeout time.Duration `env:"GOODREADS_TIMEOUT" envDefault:"3s"`
	RPS     int           `env:"GOODREADS_RPS" envDefault:"1"`

	BreakerMaxFailures uint32        `env:"GOODREADS_BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerOpenTimeout time.Duration `env:"GOODREADS_BREAKER_OPEN_TIMEOUT" envDefault:"30s"`
	BreakerWindow      time.Duration `env:"GOODREADS_BREAKER_WINDOW" envDefault:"60s"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if c.SearchLimit < 1 || c.SearchLimit > 10 {
		return fmt.Errorf("SEARCH_LIMIT must be between 1 and 10, got %d", c.SearchLimit)
	}
	if c.Goodreads.Timeout <= 0 {
		return fmt.Errorf("GOODREADS_TIMEOUT must be positive")
	}
	if c.Goodreads.RPS < 1 {
		return fmt.Errorf("GOODREADS_RPS must be at least 1")
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise a connection string composed
// from the individual DB_* settings. For sqlite the DB name is the file path.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Driver == "sqlite" {
		return c.Name
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}
