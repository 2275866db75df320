// Package config loads the engine configuration: a YAML file with
// environment-variable overrides (prefix WHATIF_). The tenor grid and the
// scenario list are deployment configuration, not code.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/irrbb/whatif-engine/internal/calc"
	"github.com/irrbb/whatif-engine/internal/tenor"
)

// Config is the complete engine configuration.
type Config struct {
	Server    ServerConfig   `mapstructure:"server"`
	Calc      CalcConfig     `mapstructure:"calc"`
	Database  DatabaseConfig `mapstructure:"database"`
	Redis     RedisConfig    `mapstructure:"redis"`
	Tenors    []TenorBucket  `mapstructure:"tenors"`
	Scenarios []string       `mapstructure:"scenarios"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
}

// CalcConfig holds the remote calculation engine settings.
type CalcConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DatabaseConfig holds the optional PostgreSQL settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// RedisConfig holds the optional Redis cache settings.
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// TenorBucket is one configured tenor grid bucket. UpperBoundMonths may be
// omitted when the label itself encodes the bound ("3M", "5Y").
type TenorBucket struct {
	Label            string `mapstructure:"label"`
	UpperBoundMonths int    `mapstructure:"upper_bound_months"`
}

// Load reads configuration from the given file path (optional) and the
// environment, applying defaults for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("server.shutdown_seconds", 5)
	v.SetDefault("calc.url", "http://localhost:9090")
	v.SetDefault("calc.timeout_seconds", 30)
	v.SetDefault("redis.ttl_seconds", 30)
	v.SetDefault("scenarios", calc.DefaultScenarios())

	v.SetEnvPrefix("WHATIF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Grid builds the tenor grid from configuration, falling back to the
// default ALCO grid when no buckets are configured.
func (c *Config) Grid() (tenor.Grid, error) {
	if len(c.Tenors) == 0 {
		return tenor.Default(), nil
	}
	buckets := make([]tenor.Bucket, 0, len(c.Tenors))
	for _, t := range c.Tenors {
		months := t.UpperBoundMonths
		if months == 0 {
			parsed, err := tenor.ParseLabel(t.Label)
			if err != nil {
				return nil, err
			}
			months = parsed
		}
		buckets = append(buckets, tenor.Bucket{Label: t.Label, UpperBoundMonths: months})
	}
	return tenor.NewGrid(buckets)
}

// ServerTimeout returns the request timeout as a duration.
func (c *Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

// CalcTimeout returns the remote calculation timeout as a duration.
func (c *Config) CalcTimeout() time.Duration {
	return time.Duration(c.Calc.TimeoutSeconds) * time.Second
}

// RedisTTL returns the cache TTL as a duration.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}
