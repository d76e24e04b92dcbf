// Package config loads shopdesk configuration from YAML with environment
// overrides. Duration settings are stored as strings and exposed through
// accessor methods that fall back to defaults on parse failure.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all shopdesk configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Dispatch engine tuning
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Intent classifier settings
	Classifier ClassifierConfig `yaml:"classifier"`

	// Session state storage
	Session SessionConfig `yaml:"session"`

	// Audit sink settings
	Audit AuditConfig `yaml:"audit"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DispatchConfig tunes the dispatch engine state machine.
type DispatchConfig struct {
	// MaxRetries bounds retries after handler faults within one turn.
	MaxRetries int `yaml:"max_retries"`

	// ConfidenceThreshold below which a successful answer triggers one
	// retry with the next-ranked category.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// DefaultConfidence substituted when a handler reports confidence <= 0.
	DefaultConfidence float64 `yaml:"default_confidence"`

	// HandlerTimeout bounds each handler invocation.
	HandlerTimeout string `yaml:"handler_timeout"`

	// HandoffMessage is the fixed reply returned on escalation.
	HandoffMessage string `yaml:"handoff_message"`
}

// ClassifierConfig configures the weighted phrase classifier.
type ClassifierConfig struct {
	// TablePath points to a curated YAML phrase table. Empty uses the
	// compiled-in default table.
	TablePath string `yaml:"table_path"`

	// WatchTable enables hot reload of TablePath via fsnotify.
	WatchTable bool `yaml:"watch_table"`

	// StickyBonus added when a category matches the prior turn's
	// active category.
	StickyBonus float64 `yaml:"sticky_bonus"`
}

// SessionConfig configures the session state store.
type SessionConfig struct {
	// Driver selects the store backend: "memory" or "sqlite".
	Driver string `yaml:"driver"`

	// DatabasePath is the SQLite file for the sqlite driver.
	DatabasePath string `yaml:"database_path"`

	// HistoryLimit caps turn_history length; oldest turns drop first.
	HistoryLimit int `yaml:"history_limit"`
}

// AuditConfig configures the audit sink.
type AuditConfig struct {
	// Driver selects the sink backend: "file", "sqlite" or "memory".
	Driver string `yaml:"driver"`

	// Path is the JSON-lines file (file driver) or SQLite file (sqlite driver).
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// LoggingConfig configures logging verbosity.
type LoggingConfig struct {
	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "shopdesk",
		Version: "1.0.0",

		Dispatch: DispatchConfig{
			MaxRetries:          2,
			ConfidenceThreshold: 0.4,
			DefaultConfidence:   0.8,
			HandlerTimeout:      "5s",
			HandoffMessage:      "I couldn't resolve this automatically, so I'm handing you over to a colleague. A human agent will follow up shortly.",
		},

		Classifier: ClassifierConfig{
			StickyBonus: 0.15,
		},

		Session: SessionConfig{
			Driver:       "memory",
			DatabasePath: "data/shopdesk.db",
			HistoryLimit: 50,
		},

		Audit: AuditConfig{
			Driver: "file",
			Path:   "data/audit.log",
		},

		Server: ServerConfig{
			Address: "127.0.0.1",
			Port:    8085,
		},

		Logging: LoggingConfig{
			Debug: false,
		},
	}
}

// Load loads configuration from a YAML file. A missing file returns defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
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
	if path := os.Getenv("SHOPDESK_DB"); path != "" {
		c.Session.Driver = "sqlite"
		c.Session.DatabasePath = path
	}
	if path := os.Getenv("SHOPDESK_AUDIT_PATH"); path != "" {
		c.Audit.Path = path
	}
	if addr := os.Getenv("SHOPDESK_ADDR"); addr != "" {
		c.Server.Address = addr
	}
	if port := os.Getenv("SHOPDESK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if table := os.Getenv("SHOPDESK_INTENT_TABLE"); table != "" {
		c.Classifier.TablePath = table
	}
	if debug := os.Getenv("SHOPDESK_DEBUG"); debug == "1" || debug == "true" {
		c.Logging.Debug = true
	}
}

// GetHandlerTimeout returns the per-invocation handler timeout.
func (c *Config) GetHandlerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Dispatch.HandlerTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch.max_retries must be >= 0, got %d", c.Dispatch.MaxRetries)
	}
	if c.Dispatch.ConfidenceThreshold < 0 || c.Dispatch.ConfidenceThreshold > 1 {
		return fmt.Errorf("dispatch.confidence_threshold must be in [0,1], got %v", c.Dispatch.ConfidenceThreshold)
	}
	if c.Dispatch.DefaultConfidence <= 0 || c.Dispatch.DefaultConfidence > 1 {
		return fmt.Errorf("dispatch.default_confidence must be in (0,1], got %v", c.Dispatch.DefaultConfidence)
	}
	if c.Session.HistoryLimit < 0 {
		return fmt.Errorf("session.history_limit must be >= 0, got %d", c.Session.HistoryLimit)
	}
	switch c.Session.Driver {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("session.driver must be memory or sqlite, got %q", c.Session.Driver)
	}
	switch c.Audit.Driver {
	case "", "memory", "file", "sqlite":
	default:
		return fmt.Errorf("audit.driver must be memory, file or sqlite, got %q", c.Audit.Driver)
	}
	return nil
}
