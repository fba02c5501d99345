package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the service configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Log           LogConfig           `yaml:"log"`
	Transfers     TransfersConfig     `yaml:"transfers"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Jobs          JobsConfig          `yaml:"jobs"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
	File  string `yaml:"file"`
}

type TransfersConfig struct {
	// ReminderCooldown is the minimum time between reminders for one
	// request. Zero disables throttling.
	ReminderCooldown time.Duration `yaml:"reminder_cooldown"`
}

type NotificationsConfig struct {
	Retention     int `yaml:"retention"`
	FanoutWorkers int `yaml:"fanout_workers"`
}

type JobsConfig struct {
	// Reconcile is a cron spec for the reconciliation sweep. Empty disables it.
	Reconcile string `yaml:"reconcile"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "oprema.db"},
		Log:      LogConfig{Level: "info"},
		Transfers: TransfersConfig{
			ReminderCooldown: 60 * time.Second,
		},
		Notifications: NotificationsConfig{
			Retention:     100,
			FanoutWorkers: 8,
		},
		Jobs: JobsConfig{Reconcile: "@every 5m"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path, a .env file in the working directory, and OPREMA_* environment
// variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) overrideWithEnv() error {
	if val := os.Getenv("OPREMA_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("OPREMA_DB"); val != "" {
		c.Database.Path = val
	}
	if val := os.Getenv("OPREMA_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("OPREMA_LOG_FILE"); val != "" {
		c.Log.File = val
	}
	if val := os.Getenv("OPREMA_RECONCILE_SCHEDULE"); val != "" {
		c.Jobs.Reconcile = val
	}

	if val := os.Getenv("OPREMA_REMINDER_COOLDOWN"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("OPREMA_REMINDER_COOLDOWN: %w", err)
		}
		c.Transfers.ReminderCooldown = d
	}
	if val := os.Getenv("OPREMA_NOTIFICATION_RETENTION"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("OPREMA_NOTIFICATION_RETENTION: %w", err)
		}
		c.Notifications.Retention = n
	}
	if val := os.Getenv("OPREMA_FANOUT_WORKERS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("OPREMA_FANOUT_WORKERS: %w", err)
		}
		c.Notifications.FanoutWorkers = n
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	if c.Transfers.ReminderCooldown < 0 {
		return fmt.Errorf("reminder cooldown must not be negative")
	}
	if c.Notifications.Retention <= 0 {
		return fmt.Errorf("notification retention must be positive, got %d", c.Notifications.Retention)
	}
	if c.Notifications.FanoutWorkers <= 0 {
		return fmt.Errorf("fanout workers must be positive, got %d", c.Notifications.FanoutWorkers)
	}
	return nil
}
