// Package config loads the application configuration from a TOML file in
// the user's config directory, with environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	// Application configuration
	App AppConfig `toml:"app"`

	// Document store configuration
	Store StoreConfig `toml:"store"`

	// Suggestion model configuration
	Model ModelConfig `toml:"model"`

	// Assignment engine configuration
	Engine EngineConfig `toml:"engine"`
}

// AppConfig contains general application settings.
type AppConfig struct {
	ListenAddr string `toml:"listen_addr"` // HTTP listen address
	DebugMode  bool   `toml:"debug_mode"`  // Enable debug logging
}

// StoreConfig contains document store settings.
type StoreConfig struct {
	Path        string `toml:"path"`         // SQLite file path ("" = default location)
	BusyTimeout string `toml:"busy_timeout"` // SQLite busy timeout (e.g., "5s")
	JournalMode string `toml:"journal_mode"` // SQLite journal mode
}

// ModelConfig contains suggestion model settings.
type ModelConfig struct {
	Provider          string `toml:"provider"`            // "gemini" or "ollama"
	APIKey            string `toml:"api_key"`             // Usually left empty and set via GEMINI_API_KEY
	BaseURL           string `toml:"base_url"`            // Ollama endpoint ("" = http://localhost:11434)
	Name              string `toml:"name"`                // Model name
	RequestsPerMinute int    `toml:"requests_per_minute"` // Rate limit for model calls
	MaxAttempts       int    `toml:"max_attempts"`        // Retry budget per call
	BaseDelay         string `toml:"base_delay"`          // First retry delay (e.g., "1s")
}

// EngineConfig contains assignment engine settings.
type EngineConfig struct {
	ChunkSize   int    `toml:"chunk_size"`   // Assignments per atomic batch
	MaxAttempts int    `toml:"max_attempts"` // Retry budget per chunk
	BaseDelay   string `toml:"base_delay"`   // First retry delay
	LandTarget  int    `toml:"land_target"`  // Default total lands for auto-fill
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			ListenAddr: "127.0.0.1:8787",
			DebugMode:  false,
		},
		Store: StoreConfig{
			Path:        "",
			BusyTimeout: "5s",
			JournalMode: "WAL",
		},
		Model: ModelConfig{
			Provider:          "gemini",
			Name:              "gemini-2.5-flash",
			RequestsPerMinute: 30,
			MaxAttempts:       3,
			BaseDelay:         "1s",
		},
		Engine: EngineConfig{
			ChunkSize:   50,
			MaxAttempts: 3,
			BaseDelay:   "500ms",
			LandTarget:  37,
		},
	}
}

// configDir returns (and creates) the application's config directory.
func configDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".deckforge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}

// DefaultStorePath returns the default SQLite file location.
func DefaultStorePath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "deckforge.db"), nil
}

// Load loads the configuration from the default location. Returns default
// config if the file doesn't exist. The GEMINI_API_KEY environment variable
// always wins over the file for the model key.
func Load() (*Config, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(filepath.Join(dir, "config.toml"))
}

// LoadFrom loads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	config := DefaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Model.APIKey = key
	}
	if addr := os.Getenv("DECKFORGE_LISTEN_ADDR"); addr != "" {
		config.App.ListenAddr = addr
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to disk.
func (c *Config) Save() error {
	dir, err := configDir()
	if err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.toml"), data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "", "gemini", "ollama":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	if _, err := time.ParseDuration(c.Store.BusyTimeout); err != nil {
		return fmt.Errorf("invalid busy timeout %q: %w", c.Store.BusyTimeout, err)
	}
	if _, err := time.ParseDuration(c.Model.BaseDelay); err != nil {
		return fmt.Errorf("invalid model base delay %q: %w", c.Model.BaseDelay, err)
	}
	if _, err := time.ParseDuration(c.Engine.BaseDelay); err != nil {
		return fmt.Errorf("invalid engine base delay %q: %w", c.Engine.BaseDelay, err)
	}
	if c.Engine.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive: %d", c.Engine.ChunkSize)
	}
	if c.Model.MaxAttempts < 1 || c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be positive")
	}
	if c.Engine.LandTarget < 0 {
		return fmt.Errorf("land target cannot be negative: %d", c.Engine.LandTarget)
	}
	return nil
}

// GetModelBaseDelay returns the model retry base delay as a duration.
func (c *Config) GetModelBaseDelay() (time.Duration, error) {
	return time.ParseDuration(c.Model.BaseDelay)
}

// GetEngineBaseDelay returns the engine retry base delay as a duration.
func (c *Config) GetEngineBaseDelay() (time.Duration, error) {
	return time.ParseDuration(c.Engine.BaseDelay)
}

// GetBusyTimeout returns the store busy timeout as a duration.
func (c *Config) GetBusyTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Store.BusyTimeout)
}
