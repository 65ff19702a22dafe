package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sandbox  SandboxConfig  `mapstructure:"sandbox"`
	Launcher LauncherConfig `mapstructure:"launcher"`
}

// ServerConfig holds MCP server configuration
type ServerConfig struct {
	Transport  string `mapstructure:"transport"`
	HTTPPort   int    `mapstructure:"http_port"`
	MaxHandles int    `mapstructure:"max_handles"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// SandboxConfig holds process confinement configuration
type SandboxConfig struct {
	// BwrapPath is the bubblewrap executable used on Linux.
	BwrapPath string `mapstructure:"bwrap_path"`
	// RequireConfinement fails sandboxed launches whose sandbox cannot be
	// built instead of running them unconfined.
	RequireConfinement bool `mapstructure:"require_confinement"`
	// DefaultID is the workspace id used when a caller does not supply one.
	DefaultID string `mapstructure:"default_id"`
	// AllowNetwork is the default network policy for sandboxed launches.
	AllowNetwork bool `mapstructure:"allow_network"`
}

// LauncherConfig holds settings for the launcher CLI poll loop
type LauncherConfig struct {
	PollIntervalMS int `mapstructure:"poll_interval_ms"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	return load(v)
}

// NewFromFile loads and validates configuration from an explicit file
func NewFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return load(v)
}

// newViper returns a viper instance with defaults and WORKSPACE_* environment
// overrides applied.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("WORKSPACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.max_handles", 64)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("sandbox.bwrap_path", "bwrap")
	v.SetDefault("sandbox.require_confinement", false)
	v.SetDefault("sandbox.default_id", "default")
	v.SetDefault("sandbox.allow_network", false)

	v.SetDefault("launcher.poll_interval_ms", 10)
}

func load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if c.Server.MaxHandles <= 0 {
		return fmt.Errorf("server.max_handles must be positive, got: %d", c.Server.MaxHandles)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if c.Sandbox.BwrapPath == "" {
		return fmt.Errorf("sandbox.bwrap_path must not be empty")
	}

	if c.Sandbox.DefaultID == "" {
		return fmt.Errorf("sandbox.default_id must not be empty")
	}

	if c.Launcher.PollIntervalMS <= 0 {
		return fmt.Errorf("launcher.poll_interval_ms must be positive, got: %d", c.Launcher.PollIntervalMS)
	}

	return nil
}

// PollInterval returns the launcher poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Launcher.PollIntervalMS) * time.Millisecond
}
