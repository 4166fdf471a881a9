package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawConfig mirrors Config but uses a pointer for EnableCache so Load can
// tell "absent from the file" (default true) apart from "explicitly
// false", which a plain bool cannot.
type rawConfig struct {
	MaxConcurrentTasks    int                        `yaml:"max_concurrent_tasks"`
	MaxRetries            int                        `yaml:"max_retries"`
	DefaultTimeoutMS      int                        `yaml:"default_timeout_ms"`
	EnableCache           *bool                      `yaml:"enable_cache"`
	EnablePersistence     bool                       `yaml:"enable_persistence"`
	HTTPPort              int                        `yaml:"http_port"`
	WSPort                int                        `yaml:"ws_port"`
	Upstream              map[string]UpstreamConfig  `yaml:"upstream"`
	AutoOpenVisualization *bool                      `yaml:"auto_open_visualization"`
	LogLevel              string                     `yaml:"log_level"`
	LogFormat             string                     `yaml:"log_format"`
	LogFile               string                     `yaml:"log_file"`
	ToolsDir              string                     `yaml:"tools_dir"`
	Selector              SelectorConfig             `yaml:"selector"`
	Health                HealthConfig               `yaml:"health"`
	QueueSoftLimit        int                        `yaml:"queue_soft_limit"`
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv resolves ${VAR} and ${VAR:-default} references in s, the way
// a shell would, without touching bare $VAR (YAML values routinely
// contain literal dollar signs that are not meant to be expanded).
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, fallback := groups[1], groups[3]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return fallback
	})
}

// Load reads a YAML configuration file, expands ${VAR}/${VAR:-default}
// references, overlays GENOBRIDGE_-prefixed environment variables, fills
// defaults, and validates the result. path may be empty, in which case
// only environment variables and defaults apply.
func Load(path string) (*Config, error) {
	var raw rawConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return defaultsOnly(), nil
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := expandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	cfg := &Config{
		MaxConcurrentTasks:    raw.MaxConcurrentTasks,
		MaxRetries:            raw.MaxRetries,
		DefaultTimeoutMS:      raw.DefaultTimeoutMS,
		EnableCache:           raw.EnableCache == nil || *raw.EnableCache,
		EnablePersistence:     raw.EnablePersistence,
		HTTPPort:              raw.HTTPPort,
		WSPort:                raw.WSPort,
		Upstream:              raw.Upstream,
		AutoOpenVisualization: raw.AutoOpenVisualization == nil || *raw.AutoOpenVisualization,
		LogLevel:              raw.LogLevel,
		LogFormat:             raw.LogFormat,
		LogFile:               raw.LogFile,
		ToolsDir:              raw.ToolsDir,
		Selector:              raw.Selector,
		Health:                raw.Health,
		QueueSoftLimit:        raw.QueueSoftLimit,
	}

	applyEnvOverlay(cfg)
	cfg.SetDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultsOnly() *Config {
	cfg := &Config{EnableCache: true, AutoOpenVisualization: true}
	applyEnvOverlay(cfg)
	cfg.SetDefaults()
	return cfg
}

// applyEnvOverlay layers GENOBRIDGE_-prefixed environment variables on top
// of whatever the file produced; env takes precedence over the file.
func applyEnvOverlay(cfg *Config) {
	const prefix = "GENOBRIDGE_"
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		switch strings.TrimPrefix(k, prefix) {
		case "HTTP_PORT":
			fmt.Sscanf(v, "%d", &cfg.HTTPPort)
		case "WS_PORT":
			fmt.Sscanf(v, "%d", &cfg.WSPort)
		case "LOG_LEVEL":
			cfg.LogLevel = v
		case "LOG_FORMAT":
			cfg.LogFormat = v
		case "TOOLS_DIR":
			cfg.ToolsDir = v
		}
	}
}
