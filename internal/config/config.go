package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"tourplan/internal/cluster"
	"tourplan/internal/optimizer"
	"tourplan/internal/scheduler"
)

// ProviderConfig points at one external HTTP service.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// GeocoderConfig adds provider-side throttling on top of the endpoint.
type GeocoderConfig struct {
	ProviderConfig `yaml:",inline"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
}

// Config is the full service configuration. Values come from an
// optional YAML file; environment variables override the deployment
// essentials so containers need no file at all.
type Config struct {
	Port        int    `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	Cluster   cluster.Config       `yaml:"cluster"`
	Fitter    cluster.FitterConfig `yaml:"fitter"`
	Optimizer optimizer.Config     `yaml:"optimizer"`
	Routing   ProviderConfig       `yaml:"routing"`
	Geocoder  GeocoderConfig       `yaml:"geocoder"`
	Scheduler scheduler.Config     `yaml:"scheduler"`
}

func Default() Config {
	return Config{
		Port:      8080,
		LogLevel:  "info",
		Cluster:   cluster.DefaultConfig(),
		Fitter:    cluster.DefaultFitterConfig(),
		Optimizer: optimizer.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
	}
}

// Load reads the YAML file at path when it exists, then applies
// environment overrides. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	overrideString(&c.LogLevel, "LOG_LEVEL")
	overrideString(&c.DatabaseURL, "DATABASE_URL")
	overrideString(&c.RedisURL, "REDIS_URL")
	overrideString(&c.Optimizer.Endpoint, "OPTIMIZER_URL")
	overrideString(&c.Routing.BaseURL, "ROUTING_URL")
	overrideString(&c.Routing.APIKey, "ROUTING_API_KEY")
	overrideString(&c.Geocoder.BaseURL, "GEOCODER_URL")
	overrideString(&c.Geocoder.APIKey, "GEOCODER_API_KEY")
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
