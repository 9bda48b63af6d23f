// Package config handles configuration loading for the runtime.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the orchestration runtime.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Bus      BusConfig      `mapstructure:"bus"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// RegistryConfig holds agent liveness settings.
type RegistryConfig struct {
	// HeartbeatTimeout is how long an agent may go silent before the
	// staleness sweep demotes it to error.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`
	// SweepInterval is how often the staleness sweep runs.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// Retention is how long terminated records are kept before cleanup.
	Retention time.Duration `mapstructure:"retention"`
}

// QueueConfig holds task queue settings.
type QueueConfig struct {
	// AssignInterval is the pending-task sweep period.
	AssignInterval time.Duration `mapstructure:"assign_interval"`
	// CleanupInterval is how often terminal tasks are purged.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// TaskRetention is how long terminal tasks are kept before cleanup.
	TaskRetention time.Duration `mapstructure:"task_retention"`
	// MaxRetries is the default retry budget for recoverable failures.
	MaxRetries int `mapstructure:"max_retries"`
}

// WorkflowConfig holds workflow engine settings.
type WorkflowConfig struct {
	// PollInterval is how often a step's task is checked for completion.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// DefinitionsDir is where YAML workflow definitions live.
	DefinitionsDir string `mapstructure:"definitions_dir"`
}

// BusConfig holds message bus settings.
type BusConfig struct {
	// RecentLogSize bounds the per-channel recent message log.
	RecentLogSize int `mapstructure:"recent_log_size"`
}

// StorageConfig holds durable storage settings.
type StorageConfig struct {
	// Path is the SQLite database path; empty selects the project default.
	Path string `mapstructure:"path"`
}

// Load loads configuration with the following precedence
// (highest to lowest):
// 1. Environment variables (OPERATIVE_*)
// 2. Project config (.operative.yaml in current directory or parent)
// 3. User config (~/.config/operative/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Load user config from XDG path
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Load project config if present
	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			// Merge project config (takes precedence)
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	// Environment variable overrides, e.g. OPERATIVE_QUEUE_MAX_RETRIES.
	v.SetEnvPrefix("OPERATIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)
	return cfg, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("registry.heartbeat_timeout", "90s")
	v.SetDefault("registry.sweep_interval", "30s")
	v.SetDefault("registry.retention", "24h")

	v.SetDefault("queue.assign_interval", "2s")
	v.SetDefault("queue.cleanup_interval", "1h")
	v.SetDefault("queue.task_retention", "24h")
	v.SetDefault("queue.max_retries", 3)

	v.SetDefault("workflow.poll_interval", "250ms")
	v.SetDefault("workflow.definitions_dir", "workflows")

	v.SetDefault("bus.recent_log_size", 100)

	v.SetDefault("storage.path", "")
}

// bindEnvKeys binds every known key so AutomaticEnv sees it even when
// no config file mentions it.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"registry.heartbeat_timeout",
		"registry.sweep_interval",
		"registry.retention",
		"queue.assign_interval",
		"queue.cleanup_interval",
		"queue.task_retention",
		"queue.max_retries",
		"workflow.poll_interval",
		"workflow.definitions_dir",
		"bus.recent_log_size",
		"storage.path",
	} {
		v.BindEnv(key)
	}
}

// getUserConfigDir returns the XDG config directory for the runtime.
func getUserConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "operative")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "operative")
	}
	return filepath.Join(home, ".config", "operative")
}

// findProjectConfig searches for .operative.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".operative.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{
			HeartbeatTimeout: 90 * time.Second,
			SweepInterval:    30 * time.Second,
			Retention:        24 * time.Hour,
		},
		Queue: QueueConfig{
			AssignInterval:  2 * time.Second,
			CleanupInterval: time.Hour,
			TaskRetention:   24 * time.Hour,
			MaxRetries:      3,
		},
		Workflow: WorkflowConfig{
			PollInterval:   250 * time.Millisecond,
			DefinitionsDir: "workflows",
		},
		Bus: BusConfig{
			RecentLogSize: 100,
		},
	}
}
