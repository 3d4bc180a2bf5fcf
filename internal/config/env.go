package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "IMAGED_"

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg fields from IMAGED_* variables, e.g. IMAGED_ADDR or
// IMAGED_VRAM_BUDGET_MB. Lists are comma separated.
func ApplyEnv(cfg *Config) error {
	strs := map[string]*string{
		"ADDR":           &cfg.Addr,
		"MODELS_DIR":     &cfg.ModelsDir,
		"DEFAULT_MODEL":  &cfg.DefaultModel,
		"BACKEND":        &cfg.Backend,
		"DEVICE":         &cfg.Device,
		"OUTPUT_DIR":     &cfg.OutputDir,
		"OUTPUT_FORMAT":  &cfg.OutputFormat,
		"LRU_STATE_FILE": &cfg.LRUStateFile,
		"LOG_LEVEL":      &cfg.LogLevel,
		"LOG_FORMAT":     &cfg.LogFormat,
	}
	for k, p := range strs {
		if v, ok := lookup(k); ok {
			*p = v
		}
	}
	ints := map[string]*int{
		"VRAM_BUDGET_MB":  &cfg.VRAMBudgetMB,
		"VRAM_MARGIN_MB":  &cfg.VRAMMarginMB,
		"MAX_QUEUE_DEPTH": &cfg.MaxQueueDepth,
		"OUTPUT_QUALITY":  &cfg.OutputQuality,
	}
	for k, p := range ints {
		if v, ok := lookup(k); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*p = n
		}
	}
	int64s := map[string]*int64{
		"MAX_WAIT_SECONDS":         &cfg.MaxWaitSeconds,
		"DRAIN_TIMEOUT_SECONDS":    &cfg.DrainTimeoutSeconds,
		"MAX_BODY_BYTES":           &cfg.MaxBodyBytes,
		"GENERATE_TIMEOUT_SECONDS": &cfg.GenerateTimeoutSeconds,
	}
	for k, p := range int64s {
		if v, ok := lookup(k); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*p = n
		}
	}
	bools := map[string]*bool{
		"HALF_PRECISION": &cfg.HalfPrecision,
		"CORS_ENABLED":   &cfg.CORSEnabled,
	}
	for k, p := range bools {
		if v, ok := lookup(k); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, k, err)
			}
			*p = b
		}
	}
	lists := map[string]*[]string{
		"METADATA_FORMATS":     &cfg.MetadataFormats,
		"CORS_ALLOWED_ORIGINS": &cfg.CORSAllowedOrigins,
		"CORS_ALLOWED_METHODS": &cfg.CORSAllowedMethods,
		"CORS_ALLOWED_HEADERS": &cfg.CORSAllowedHeaders,
	}
	for k, p := range lists {
		if v, ok := lookup(k); ok {
			*p = SplitCSV(v)
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// SplitCSV splits a comma separated list, trimming blanks and dropping empty items.
func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
