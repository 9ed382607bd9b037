// Package config holds all skupair configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all skupair configuration.
type Config struct {
	// Store identity used by SKU generation
	Store StoreConfig `yaml:"store"`

	// Target ERP endpoints
	ERP ERPConfig `yaml:"erp"`

	// Browser session settings
	Browser BrowserConfig `yaml:"browser"`

	// Pairing run settings
	Pairing PairingConfig `yaml:"pairing"`

	// Batch generation settings
	Batch BatchConfig `yaml:"batch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// StateDir is where auth state, history, artifacts and logs live.
	StateDir string `yaml:"state_dir"`
}

// StoreConfig identifies the store whose SKUs are generated.
type StoreConfig struct {
	Name            string `yaml:"name"`
	RedBoxSKU       string `yaml:"red_box_sku"`
	CardMappingPath string `yaml:"card_mapping_path"`
}

// ERPConfig points at the ERP the automation drives.
type ERPConfig struct {
	BaseURL   string `yaml:"base_url"`
	OrderPage string `yaml:"order_page"`
}

// OrderListURL is the absolute URL of the paid-orders list.
func (e ERPConfig) OrderListURL() string {
	return strings.TrimRight(e.BaseURL, "/") + e.OrderPage
}

// BrowserConfig configures the automation session.
type BrowserConfig struct {
	// DebuggerURL attaches to an already-running browser when set.
	DebuggerURL string `yaml:"debugger_url"`
	Headless    bool   `yaml:"headless"`

	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`

	NavigationTimeout string `yaml:"navigation_timeout"`
	ElementTimeout    string `yaml:"element_timeout"`
}

// PairingConfig configures the pairing workflow.
type PairingConfig struct {
	MaxOrders     int    `yaml:"max_orders"`
	StepTimeout   string `yaml:"step_timeout"`
	FilterTimeout string `yaml:"filter_timeout"`
	ArtifactsDir  string `yaml:"artifacts_dir"`
}

// BatchConfig configures batch generation.
type BatchConfig struct {
	OutputDir     string `yaml:"output_dir"`
	WatchDebounce string `yaml:"watch_debounce"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string `yaml:"level"` // debug, info, warn, error
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Name:            "Michael",
			RedBoxSKU:       "Michael-RED BOX",
			CardMappingPath: "config/card_mapping.json",
		},

		ERP: ERPConfig{
			BaseURL:   "https://www.dianxiaomi.com",
			OrderPage: "/web/order/paid?go=m100",
		},

		Browser: BrowserConfig{
			Headless:          false,
			ViewportWidth:     1440,
			ViewportHeight:    900,
			NavigationTimeout: "30s",
			ElementTimeout:    "10s",
		},

		Pairing: PairingConfig{
			MaxOrders:     0,
			StepTimeout:   "10s",
			FilterTimeout: "15s",
		},

		Batch: BatchConfig{
			WatchDebounce: "500ms",
		},

		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},

		StateDir: ".skupair",
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults.
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
	if url := os.Getenv("SKUPAIR_ERP_URL"); url != "" {
		c.ERP.BaseURL = url
	}
	if dir := os.Getenv("SKUPAIR_STATE_DIR"); dir != "" {
		c.StateDir = dir
	}
	if v := os.Getenv("SKUPAIR_HEADLESS"); v != "" {
		c.Browser.Headless = v == "1" || strings.EqualFold(v, "true")
	}
	if level := os.Getenv("SKUPAIR_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// AuthStatePath is where the persisted login state lives.
func (c *Config) AuthStatePath() string {
	return filepath.Join(c.StateDir, "auth_state.json")
}

// HistoryPath is the run-history database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.StateDir, "history.db")
}

// ArtifactsDir is where failure screenshots and page dumps are written.
func (c *Config) ArtifactsDir() string {
	if c.Pairing.ArtifactsDir != "" {
		return c.Pairing.ArtifactsDir
	}
	return filepath.Join(c.StateDir, "artifacts")
}

// LogFile is the rotating log file location.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.StateDir, "logs", "skupair.log")
}

// GetNavigationTimeout returns the navigation timeout as a duration.
func (c *Config) GetNavigationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.NavigationTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetElementTimeout returns the element-wait timeout as a duration.
func (c *Config) GetElementTimeout() time.Duration {
	d, err := time.ParseDuration(c.Browser.ElementTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetStepTimeout returns the per-step timeout as a duration.
func (c *Config) GetStepTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pairing.StepTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetFilterTimeout returns the unpaired-filter timeout as a duration.
func (c *Config) GetFilterTimeout() time.Duration {
	d, err := time.ParseDuration(c.Pairing.FilterTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetWatchDebounce returns the drop-folder settle window as a duration.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Batch.WatchDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}
