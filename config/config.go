// Package config loads the service configuration.
//
// Values come from a YAML file when a path is given (--config flag or
// CONFIG_PATH) and can always be overridden by environment variables.
// Without a file everything is read from the environment, falling back to
// the env-default tags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root configuration
type Config struct {
	// Env selects the log format: "dev", "staging" or "prod"
	Env string `yaml:"env" env:"ENV" env-default:"dev"`

	// StoragePath is the SQLite database file
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"storage/welfare.db"`

	// UploadDir holds household photos
	UploadDir      string `yaml:"upload_dir" env:"UPLOAD_DIR" env-default:"uploads"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"5242880"`

	// SeedDemo inserts sample households when the table is empty
	SeedDemo bool `yaml:"seed_demo" env:"SEED_DEMO" env-default:"false"`

	HTTPServer HTTPServer `yaml:"http_server"`
	Redis      Redis      `yaml:"redis"`
	Session    Session    `yaml:"session"`
	Admin      Admin      `yaml:"admin"`
}

type HTTPServer struct {
	Addr         string        `yaml:"address" env:"HTTP_SERVER_ADDR" env-default:":8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Redis struct {
	Addr     string `yaml:"address" env:"REDIS_ADDR" env-default:"127.0.0.1:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Session struct {
	TTL time.Duration `yaml:"ttl" env:"SESSION_TTL" env-default:"12h"`
}

// Admin is the account seeded on first start
type Admin struct {
	Username string `yaml:"username" env:"ADMIN_USERNAME" env-default:"admin"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD" env-default:"admin123"`
}

// Load reads the configuration from path, or from the environment alone
// when path is empty
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from environment: %w", err)
		}
		return &cfg, cfg.validate()
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	return &cfg, cfg.validate()
}

// Path resolves the config file path: the flag value wins over CONFIG_PATH
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}

func (c *Config) validate() error {
	if c.StoragePath == "" {
		return errors.New("storage_path must not be empty")
	}
	if c.UploadDir == "" {
		return errors.New("upload_dir must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	return nil
}
