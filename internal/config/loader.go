package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr              string `json:"addr" yaml:"addr" toml:"addr"`
	ManifestPath      string `json:"manifest" yaml:"manifest" toml:"manifest"`
	CacheDir          string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	CacheMaxMB        int    `json:"cache_max_mb" yaml:"cache_max_mb" toml:"cache_max_mb"`
	MemoryThresholdMB int    `json:"memory_threshold_mb" yaml:"memory_threshold_mb" toml:"memory_threshold_mb"`
	LoadConcurrency   int    `json:"load_concurrency" yaml:"load_concurrency" toml:"load_concurrency"`
	RunConcurrency    int    `json:"run_concurrency" yaml:"run_concurrency" toml:"run_concurrency"`
	PredictTimeoutMs  int    `json:"predict_timeout_ms" yaml:"predict_timeout_ms" toml:"predict_timeout_ms"`
	LogLevel          string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
