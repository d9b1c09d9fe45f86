// Package config loads server configuration from .env, an optional YAML
// file, and REWARDS_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Log       LogConfig
	Payments  PaymentsConfig
	Lifecycle LifecycleConfig
	Login     LoginConfig
	Notify    NotifyConfig
	Sync      SyncConfig
	Seed      SeedConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	// Path is a SQLite file path, ":memory:", or "memory" for the
	// in-process store.
	Path string
}

type LogConfig struct {
	Env   string
	Level string
}

type PaymentsConfig struct {
	// EncryptionKey is 64 hex characters. Empty generates an ephemeral key.
	EncryptionKey string
}

type LifecycleConfig struct {
	Interval time.Duration
}

type LoginConfig struct {
	MaxFailures int
	Window      time.Duration
}

type NotifyConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries int
}

type SyncConfig struct {
	AutoCreateUsers bool
}

type SeedConfig struct {
	// Scenario names a demo scenario to load at startup; empty loads none.
	Scenario string
}

// Load reads configuration. path is a YAML file; empty searches for
// config.yaml in the working directory. A missing file is not an error.
func Load(path string) (*Config, error) {
	// .env is optional.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REWARDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetInt("server.port"),
			AllowedOrigins: v.GetStringSlice("server.allowed_origins"),
		},
		Database: DatabaseConfig{Path: v.GetString("database.path")},
		Log: LogConfig{
			Env:   v.GetString("log.env"),
			Level: v.GetString("log.level"),
		},
		Payments:  PaymentsConfig{EncryptionKey: v.GetString("payments.encryption_key")},
		Lifecycle: LifecycleConfig{Interval: v.GetDuration("lifecycle.interval")},
		Login: LoginConfig{
			MaxFailures: v.GetInt("login.max_failures"),
			Window:      v.GetDuration("login.window"),
		},
		Notify: NotifyConfig{
			Workers:    v.GetInt("notify.workers"),
			QueueSize:  v.GetInt("notify.queue_size"),
			MaxRetries: v.GetInt("notify.max_retries"),
		},
		Sync: SyncConfig{AutoCreateUsers: v.GetBool("sync.auto_create_users")},
		Seed: SeedConfig{Scenario: v.GetString("seed.scenario")},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("database.path", "./rewards.db")
	v.SetDefault("log.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("payments.encryption_key", "")
	v.SetDefault("lifecycle.interval", time.Minute)
	v.SetDefault("login.max_failures", 5)
	v.SetDefault("login.window", 15*time.Minute)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.queue_size", 256)
	v.SetDefault("notify.max_retries", 3)
	v.SetDefault("sync.auto_create_users", true)
	v.SetDefault("seed.scenario", "")
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if k := c.Payments.EncryptionKey; k != "" && len(k) != 64 {
		return fmt.Errorf("payments.encryption_key must be 64 hex characters, got %d", len(k))
	}
	if c.Lifecycle.Interval <= 0 {
		return errors.New("lifecycle.interval must be positive")
	}
	if c.Login.MaxFailures <= 0 || c.Login.Window <= 0 {
		return errors.New("login.max_failures and login.window must be positive")
	}
	return nil
}
