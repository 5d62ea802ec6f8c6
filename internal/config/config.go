package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Media     MediaConfig     `mapstructure:"media"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"` // SQLite path or connection string
}

// AnthropicConfig holds generation collaborator settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// MediaConfig holds image-search collaborator settings
type MediaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	UnsplashAPIKey string `mapstructure:"unsplash_api_key"`
	MaxImages      int    `mapstructure:"max_images"`
}

// SchedulerConfig holds trigger-loop settings
type SchedulerConfig struct {
	TickCron   string        `mapstructure:"tick_cron"`   // how often due schedules are checked
	Timezone   string        `mapstructure:"timezone"`    // reference timezone for publish times
	RunTimeout time.Duration `mapstructure:"run_timeout"` // per-run generation budget
}

// ServerConfig holds admin API settings
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".content-scheduler"))
		}
	}

	v.SetEnvPrefix("SCHEDULER")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("anthropic.api_key", "SCHEDULER_ANTHROPIC_API_KEY")
	v.BindEnv("database.dsn", "SCHEDULER_DATABASE_DSN")
	v.BindEnv("media.enabled", "SCHEDULER_MEDIA_ENABLED")
	v.BindEnv("media.unsplash_api_key", "SCHEDULER_MEDIA_UNSPLASH_API_KEY")
	v.BindEnv("server.addr", "SCHEDULER_SERVER_ADDR")
	v.BindEnv("scheduler.timezone", "SCHEDULER_SCHEDULER_TIMEZONE")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "./data/scheduler.db")

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.temperature", 0.7)

	v.SetDefault("media.enabled", false)
	v.SetDefault("media.max_images", 3)

	v.SetDefault("scheduler.tick_cron", "* * * * *") // due check every minute
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.run_timeout", "120s")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
}

// Location resolves the configured reference timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("anthropic.api_key is required")
	}
	if c.Media.Enabled && c.Media.UnsplashAPIKey == "" {
		return fmt.Errorf("media.unsplash_api_key is required when media is enabled")
	}
	if c.Scheduler.RunTimeout <= 0 {
		return fmt.Errorf("scheduler.run_timeout must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
