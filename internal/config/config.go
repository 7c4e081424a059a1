package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Partvault configuration
type Config struct {
	Repo    RepoConfig    `mapstructure:"repo"`
	Publish PublishConfig `mapstructure:"publish"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Logging LoggingConfig `mapstructure:"logging"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

// RepoConfig identifies the managed repository and its shared remote
type RepoConfig struct {
	// Path is the working copy of the managed repository.
	// Defaults to the current directory.
	Path string `mapstructure:"path"`
	// Remote is the git remote all clients publish through (default: "origin")
	Remote string `mapstructure:"remote"`
	// Branch is the coordination branch (default: "main")
	Branch string `mapstructure:"branch"`
}

// PublishConfig controls the publish critical section
type PublishConfig struct {
	// TimeoutSeconds bounds how long one operation may wait for the
	// critical section before failing (default: 30)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// RetryConfig controls retries of transient synchronization failures
type RetryConfig struct {
	// MaxAttempts is the total number of tries per operation (default: 3)
	MaxAttempts int `mapstructure:"max_attempts"`
	// BackoffMs is the initial backoff in milliseconds; it doubles after
	// each failed attempt (default: 100)
	BackoffMs int `mapstructure:"backoff_ms"`
}

// LoggingConfig controls structured logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is where log files are written. Empty means logs next to the
	// user config directory.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// NotifyConfig controls revision-advance notifications
type NotifyConfig struct {
	// Enabled turns subscriber notification delivery on (default: false)
	Enabled bool `mapstructure:"enabled"`
	// URLs are shoutrrr service URLs notifications are sent through
	URLs []string `mapstructure:"urls"`
	// TimeoutSeconds bounds one delivery attempt (default: 10)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// PublishTimeout returns the publish timeout as a time.Duration
func (p *PublishConfig) PublishTimeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Backoff returns the initial retry backoff as a time.Duration
func (r *RetryConfig) Backoff() time.Duration {
	return time.Duration(r.BackoffMs) * time.Millisecond
}

// Timeout returns the notification delivery timeout as a time.Duration
func (n *NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Repo: RepoConfig{
			Path:   ".",
			Remote: "origin",
			Branch: "main",
		},
		Publish: PublishConfig{
			TimeoutSeconds: 30,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BackoffMs:   100,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Notify: NotifyConfig{
			Enabled:        false,
			URLs:           []string{},
			TimeoutSeconds: 10,
		},
	}
}

// SetDefaults registers all defaults with viper
func SetDefaults() {
	defaults := Default()

	// Repo defaults
	viper.SetDefault("repo.path", defaults.Repo.Path)
	viper.SetDefault("repo.remote", defaults.Repo.Remote)
	viper.SetDefault("repo.branch", defaults.Repo.Branch)

	// Publish defaults
	viper.SetDefault("publish.timeout_seconds", defaults.Publish.TimeoutSeconds)

	// Retry defaults
	viper.SetDefault("retry.max_attempts", defaults.Retry.MaxAttempts)
	viper.SetDefault("retry.backoff_ms", defaults.Retry.BackoffMs)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Notify defaults
	viper.SetDefault("notify.enabled", defaults.Notify.Enabled)
	viper.SetDefault("notify.urls", defaults.Notify.URLs)
	viper.SetDefault("notify.timeout_seconds", defaults.Notify.TimeoutSeconds)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "partvault")
	}
	// Fall back to ~/.config/partvault
	home, err := os.UserHomeDir()
	if err != nil {
		return ".partvault"
	}
	return filepath.Join(home, ".config", "partvault")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LogDir returns the resolved log directory. An empty logging.dir means
// logs live under the user config directory.
func (c *Config) LogDir() string {
	if c.Logging.Dir != "" {
		return c.Logging.Dir
	}
	return filepath.Join(ConfigDir(), "logs")
}
