package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"postgres"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Taxonomy struct {
		MaxDepth int `yaml:"max_depth"`
	} `yaml:"taxonomy"`
	Submit struct {
		MaxRetries    *int   `yaml:"max_retries"` // nil means unset; 0 disables retries
		RetryInterval string `yaml:"retry_interval"`
	} `yaml:"submit"`
	Rollup struct {
		ReplayInterval string `yaml:"replay_interval"`
		ReplayBatch    int    `yaml:"replay_batch"`
	} `yaml:"rollup"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "examprep.events"
	}
	if c.Submit.MaxRetries == nil {
		retries := DefaultMaxRetries
		c.Submit.MaxRetries = &retries
	}
	if c.Rollup.ReplayBatch <= 0 {
		c.Rollup.ReplayBatch = 100
	}
}

// DefaultMaxRetries applies when submit.max_retries is absent.
const DefaultMaxRetries = 3

// SubmitMaxRetries is the configured retry budget, never negative.
func (c Config) SubmitMaxRetries() int {
	if c.Submit.MaxRetries == nil {
		return DefaultMaxRetries
	}
	if *c.Submit.MaxRetries < 0 {
		return 0
	}
	return *c.Submit.MaxRetries
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
