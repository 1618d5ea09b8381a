package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DBFile          string        `envconfig:"PALAVER_DB" default:"palaver.db"`
	APIAddr         string        `envconfig:"API_ADDR" default:":8080"`
	AdminAddr       string        `envconfig:"ADMIN_ADDR" default:"localhost:8081"`
	IdentityHeader  string        `envconfig:"IDENTITY_HEADER" default:"X-User-ID"`
	ProfileCacheTTL time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"1m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("PALAVER_DB must not be empty")
	}
	if c.IdentityHeader == "" {
		return fmt.Errorf("IDENTITY_HEADER must not be empty")
	}
	if c.ProfileCacheTTL <= 0 {
		return fmt.Errorf("PROFILE_CACHE_TTL must be greater than 0")
	}
	return nil
}
