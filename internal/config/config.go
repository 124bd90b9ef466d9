// Package config loads deskmate configuration from .deskmate/config.yaml,
// with environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all deskmate configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Backend API configuration
	API APIConfig `yaml:"api"`

	// Upload watcher configuration
	Watch WatchConfig `yaml:"watch"`

	// Local cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the backend client.
type APIConfig struct {
	BaseURL         string `yaml:"base_url"`
	Timeout         string `yaml:"timeout"`
	UploadTimeout   string `yaml:"upload_timeout"`
	CredentialsFile string `yaml:"credentials_file"` // empty = ~/.deskmate/credentials.json
}

// WatchConfig configures the document upload watcher.
type WatchConfig struct {
	Dir           string   `yaml:"dir"`
	Extensions    []string `yaml:"extensions"`
	Debounce      string   `yaml:"debounce"`
	MaxFileSizeMB int      `yaml:"max_file_size_mb"`
}

// CacheConfig configures the local SQLite cache.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures category file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "deskmate",
		Version: "1.0.0",

		API: APIConfig{
			BaseURL:       "http://localhost:8000/api",
			Timeout:       "30s",
			UploadTimeout: "5m",
		},

		Watch: WatchConfig{
			Extensions:    []string{".pdf", ".docx", ".txt", ".md", ".csv"},
			Debounce:      "500ms",
			MaxFileSizeMB: 25,
		},

		Cache: CacheConfig{
			Path: ".deskmate/cache.db",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultConfigPath returns the default path to .deskmate/config.yaml.
func DefaultConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return filepath.Join(".deskmate", "config.yaml")
	}
	return filepath.Join(root, ".deskmate", "config.yaml")
}

// FindWorkspaceRoot attempts to find the workspace root by looking for a
// .deskmate directory. If not found, returns the current working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".deskmate")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DESKMATE_API_URL"); url != "" {
		c.API.BaseURL = url
	}
	if timeout := os.Getenv("DESKMATE_TIMEOUT"); timeout != "" {
		c.API.Timeout = timeout
	}
	if file := os.Getenv("DESKMATE_CREDENTIALS_FILE"); file != "" {
		c.API.CredentialsFile = file
	}
	if path := os.Getenv("DESKMATE_CACHE"); path != "" {
		c.Cache.Path = path
	}
	if debug := os.Getenv("DESKMATE_DEBUG"); debug != "" {
		if v, err := strconv.ParseBool(debug); err == nil {
			c.Logging.DebugMode = v
		}
	}
}

// GetTimeout returns the API request timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetUploadTimeout returns the document upload timeout as a duration.
func (c *Config) GetUploadTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.UploadTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetWatchDebounce returns the watcher debounce interval as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}
