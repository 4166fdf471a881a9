// Package config loads and validates genobridge's runtime configuration.
package config

import "time"

// Config holds every recognised option from §6.6. All fields are optional;
// Load fills in defaults for anything left zero-valued.
type Config struct {
	MaxConcurrentTasks int  `yaml:"max_concurrent_tasks"`
	MaxRetries         int  `yaml:"max_retries"`
	DefaultTimeoutMS   int  `yaml:"default_timeout_ms"`
	EnableCache        bool `yaml:"enable_cache"`
	EnablePersistence  bool `yaml:"enable_persistence"`

	HTTPPort int `yaml:"http_port"`
	WSPort   int `yaml:"ws_port"`

	Upstream map[string]UpstreamConfig `yaml:"upstream"`

	AutoOpenVisualization bool `yaml:"auto_open_visualization"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`

	ToolsDir string `yaml:"tools_dir"`

	Selector SelectorConfig `yaml:"selector"`

	Health HealthConfig `yaml:"health"`

	QueueSoftLimit int `yaml:"queue_soft_limit"`
}

// UpstreamConfig carries per-service credentials and endpoint overrides.
type UpstreamConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// SelectorConfig holds the Dynamic Selector's tunable scoring weights.
type SelectorConfig struct {
	Weights SelectorWeights `yaml:"weights"`
}

// SelectorWeights are the w1..w4 coefficients from §4.8.
type SelectorWeights struct {
	Keyword  float64 `yaml:"keyword"`
	Category float64 `yaml:"category"`
	Priority float64 `yaml:"priority"`
	Context  float64 `yaml:"context"`
}

// HealthConfig configures the upstream liveness monitor.
type HealthConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// DefaultTimeout returns DefaultTimeoutMS as a time.Duration.
func (c *Config) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
}

// HealthInterval returns Health.IntervalMS as a time.Duration.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Health.IntervalMS) * time.Millisecond
}

// SetDefaults fills in every zero-valued field with its documented default.
func (c *Config) SetDefaults() {
	if c.MaxConcurrentTasks == 0 {
		c.MaxConcurrentTasks = 3
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.DefaultTimeoutMS == 0 {
		c.DefaultTimeoutMS = 300_000
	}
	if c.HTTPPort == 0 {
		c.HTTPPort = 3002
	}
	if c.WSPort == 0 {
		c.WSPort = 3003
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Selector.Weights == (SelectorWeights{}) {
		c.Selector.Weights = SelectorWeights{Keyword: 3, Category: 2, Priority: 0.1, Context: 1.5}
	}
	if c.Health.IntervalMS == 0 {
		c.Health.IntervalMS = 60_000
	}
	if c.QueueSoftLimit == 0 {
		c.QueueSoftLimit = 256
	}
}
