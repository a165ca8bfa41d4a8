// Package config loads the service configuration from YAML with
// defaults, environment overrides, and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vaxsight/vaxsight/internal/logger"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`

	Log logger.Config `yaml:"log"`

	Database struct {
		DSN             string        `yaml:"dsn" validate:"required"`
		MaxOpenConns    int           `yaml:"max_open_conns" default:"10" validate:"min=1"`
		MaxIdleConns    int           `yaml:"max_idle_conns" default:"5" validate:"min=0"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
	} `yaml:"database"`

	Dataset struct {
		URL          string        `yaml:"url"`
		LoadOnStart  bool          `yaml:"load_on_start"`
		FetchTimeout time.Duration `yaml:"fetch_timeout" default:"30s"`
	} `yaml:"dataset"`

	Forecast struct {
		Horizon int `yaml:"horizon" default:"3" validate:"min=1,max=50"`
		HeldOut int `yaml:"held_out" default:"2" validate:"min=1,max=50"`
		Order   struct {
			P int `yaml:"p" default:"1" validate:"min=0"`
			D int `yaml:"d" default:"1" validate:"min=0"`
			Q int `yaml:"q" default:"1" validate:"min=0"`
		} `yaml:"order"`
	} `yaml:"forecast"`
}

// Load reads and parses a YAML configuration file, fills defaults,
// applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.applyEnv()

	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// applyEnv overrides select fields from the environment so deployments
// can keep secrets out of the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("VAXSIGHT_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("VAXSIGHT_DATASET_URL"); v != "" {
		c.Dataset.URL = v
	}
	if v := os.Getenv("VAXSIGHT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("VAXSIGHT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}
