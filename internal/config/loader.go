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

// Backends accepted in Config.Backend.
const (
	BackendNative    = "native"
	BackendAlternate = "alternate"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	// Generation runtime
	Backend       string `json:"backend" yaml:"backend" toml:"backend"`
	HalfPrecision bool   `json:"half_precision" yaml:"half_precision" toml:"half_precision"`
	Device        string `json:"device" yaml:"device" toml:"device"`

	// Resource budgeting and admission
	VRAMBudgetMB        int   `json:"vram_budget_mb" yaml:"vram_budget_mb" toml:"vram_budget_mb"`
	VRAMMarginMB        int   `json:"vram_margin_mb" yaml:"vram_margin_mb" toml:"vram_margin_mb"`
	MaxQueueDepth       int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds      int64 `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	DrainTimeoutSeconds int64 `json:"drain_timeout_seconds" yaml:"drain_timeout_seconds" toml:"drain_timeout_seconds"`
	// LRUStateFile persists instance recency across restarts when set.
	LRUStateFile string `json:"lru_state_file" yaml:"lru_state_file" toml:"lru_state_file"`

	// Output saving
	OutputDir       string   `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
	OutputFormat    string   `json:"output_format" yaml:"output_format" toml:"output_format"`
	OutputQuality   int      `json:"output_quality" yaml:"output_quality" toml:"output_quality"`
	MetadataFormats []string `json:"metadata_formats" yaml:"metadata_formats" toml:"metadata_formats"`

	// HTTP
	MaxBodyBytes           int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	GenerateTimeoutSeconds int64    `json:"generate_timeout_seconds" yaml:"generate_timeout_seconds" toml:"generate_timeout_seconds"`
	CORSEnabled            bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigins     []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSAllowedMethods     []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSAllowedHeaders     []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
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

// Validate checks enumerated fields. Empty values are allowed and mean default.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "", BackendNative, BackendAlternate:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendNative, BackendAlternate, c.Backend)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	if c.OutputQuality < 0 || c.OutputQuality > 100 {
		return fmt.Errorf("output_quality must be within 0..100, got %d", c.OutputQuality)
	}
	return nil
}
