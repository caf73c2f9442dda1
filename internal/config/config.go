package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Kaifuku configuration
type Config struct {
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`

	Monitor  MonitorConfig  `yaml:"monitor"`
	Learning LearningConfig `yaml:"learning"`
	Cache    CacheConfig    `yaml:"cache"`
	API      APIConfig      `yaml:"api"`
}

// MonitorConfig controls the health check and repair cycle
type MonitorConfig struct {
	// Scheduler tiers
	CheckInterval    time.Duration `yaml:"check_interval"`
	OptimizeInterval time.Duration `yaml:"optimize_interval"`
	LearnInterval    time.Duration `yaml:"learn_interval"`

	// Per-component history ring size
	HistorySize int `yaml:"history_size"`

	// Diagnostics
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// Repair throttling
	MaxRulesPerCycle int `yaml:"max_rules_per_cycle"`
	FixHistorySize   int `yaml:"fix_history_size"`
}

// LearningConfig controls the adaptive threshold subsystem
type LearningConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// CacheConfig controls the snapshot response cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
	Shards  int           `yaml:"shards"`
	SizeMB  int           `yaml:"size_mb"`
}

// APIConfig controls the dashboard-facing HTTP server
type APIConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ListenAddr       string `yaml:"listen_addr"`
	EnablePrometheus bool   `yaml:"enable_prometheus"`
	EnableWebSocket  bool   `yaml:"enable_websocket"`
}

// Load reads configuration from a YAML file and applies defaults.
// A missing file yields the default configuration, not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyDefaults fills in zero-valued fields
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}

	if c.Monitor.CheckInterval <= 0 {
		c.Monitor.CheckInterval = 30 * time.Second
	}
	if c.Monitor.OptimizeInterval <= 0 {
		c.Monitor.OptimizeInterval = 5 * time.Minute
	}
	if c.Monitor.LearnInterval <= 0 {
		c.Monitor.LearnInterval = 30 * time.Minute
	}
	if c.Monitor.HistorySize <= 0 {
		c.Monitor.HistorySize = 10
	}
	if c.Monitor.ProbeTimeout <= 0 {
		c.Monitor.ProbeTimeout = 5 * time.Second
	}
	if c.Monitor.MaxRulesPerCycle <= 0 {
		c.Monitor.MaxRulesPerCycle = 2
	}
	if c.Monitor.FixHistorySize <= 0 {
		c.Monitor.FixHistorySize = 50
	}

	if c.Learning.DBPath == "" {
		c.Learning.DBPath = c.DataDir + "/learning.db"
	}

	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 10 * time.Second
	}
	if c.Cache.Shards <= 0 {
		c.Cache.Shards = 64
	}
	if c.Cache.SizeMB <= 0 {
		c.Cache.SizeMB = 8
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = "127.0.0.1:8390"
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", c.LogLevel)
	}

	if c.Monitor.CheckInterval > c.Monitor.OptimizeInterval {
		return fmt.Errorf("check_interval (%v) must not exceed optimize_interval (%v)",
			c.Monitor.CheckInterval, c.Monitor.OptimizeInterval)
	}
	if c.Monitor.OptimizeInterval > c.Monitor.LearnInterval {
		return fmt.Errorf("optimize_interval (%v) must not exceed learn_interval (%v)",
			c.Monitor.OptimizeInterval, c.Monitor.LearnInterval)
	}

	if c.Monitor.HistorySize < 6 {
		return fmt.Errorf("history_size must be at least 6 for trend detection, got %d",
			c.Monitor.HistorySize)
	}

	return nil
}
