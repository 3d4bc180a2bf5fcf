package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"imaged/internal/common/fsutil"
	"imaged/internal/config"
	"imaged/internal/engine"
	"imaged/internal/manager"
	"imaged/internal/registry"
)

// options is shared by every subcommand. cfg is the merged result of config
// file, IMAGED_* environment and flags, in increasing priority.
type options struct {
	configPath string
	cfg        config.Config
	log        zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "imaged:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command { return newRootCmdWith(&options{log: zerolog.Nop()}) }

func newRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "imaged",
		Short:         "Local diffusion model server and image generator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (.yaml, .yml, .json, .toml)")
	pf.String("log-level", "info", "Log level: debug|info|warn|error")
	pf.String("log-format", "console", "Log format: console|json")
	pf.String("models-dir", "~/models/stable-diffusion", "Directory to scan for model weights")
	pf.String("default-model", "", "Default model id when a request omits model")
	pf.String("backend", config.BackendNative, "Generation backend: native|alternate")
	pf.Bool("half-precision", false, "Run models in half precision")
	pf.String("device", "", "Compute device hint passed to the weight loader")
	pf.Int("vram-budget-mb", 0, "VRAM budget in MB for all instances (0=unlimited)")
	pf.Int("vram-margin-mb", 0, "Reserved VRAM margin in MB to keep free")
	pf.String("output-dir", "", "Directory to save generated images (empty disables saving)")
	pf.String("output-format", "png", "Saved image format: png|jpeg")
	pf.Int("output-quality", 95, "JPEG quality for saved images")
	pf.StringSlice("metadata", nil, "Metadata formats to write next to images: txt,json,embed")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return opts.resolve(cmd, os.Stderr)
	}
	root.AddCommand(newServeCmd(opts), newGenerateCmd(opts), newModelsCmd(opts))
	return root
}

// resolve merges configuration sources and installs the process logger.
func (o *options) resolve(cmd *cobra.Command, logOut io.Writer) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	var cfg config.Config
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return err
	}
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	o.log = newLogger(logOut, cfg.LogLevel, cfg.LogFormat)
	return nil
}

// applyFlags copies explicitly set flags into cfg, and fills still-empty
// fields from flag defaults.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	str := func(name string, dst *string) {
		if f := fs.Lookup(name); f != nil && (f.Changed || *dst == "") {
			*dst = f.Value.String()
		}
	}
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("models-dir", &cfg.ModelsDir)
	str("default-model", &cfg.DefaultModel)
	str("backend", &cfg.Backend)
	str("device", &cfg.Device)
	str("output-dir", &cfg.OutputDir)
	str("output-format", &cfg.OutputFormat)

	if fs.Changed("half-precision") {
		cfg.HalfPrecision, _ = fs.GetBool("half-precision")
	}
	num := func(name string, dst *int) {
		if f := fs.Lookup(name); f != nil && (f.Changed || *dst == 0) {
			*dst, _ = fs.GetInt(name)
		}
	}
	num("vram-budget-mb", &cfg.VRAMBudgetMB)
	num("vram-margin-mb", &cfg.VRAMMarginMB)
	num("output-quality", &cfg.OutputQuality)
	if fs.Changed("metadata") {
		v, _ := fs.GetStringSlice("metadata")
		cfg.MetadataFormats = v
	}
}

func newLogger(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if strings.ToLower(format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// newManager scans the models directory and builds a Manager from cfg.
func (o *options) newManager() (*manager.Manager, error) {
	cfg := o.cfg
	reg, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	outDir, err := expandOptional(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	lruPath, err := expandOptional(cfg.LRUStateFile)
	if err != nil {
		return nil, err
	}
	prec := engine.PrecisionFull
	if cfg.HalfPrecision {
		prec = engine.PrecisionHalf
	}
	log := o.log
	return manager.NewWithConfig(manager.ManagerConfig{
		Registry:      reg,
		BudgetMB:      cfg.VRAMBudgetMB,
		MarginMB:      cfg.VRAMMarginMB,
		DefaultModel:  cfg.DefaultModel,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.MaxWaitSeconds) * time.Second,
		DrainTimeout:  time.Duration(cfg.DrainTimeoutSeconds) * time.Second,
		Backend:       cfg.Backend,
		Precision:     prec,
		Device:        cfg.Device,
		Output: manager.OutputConfig{
			Dir:             outDir,
			Format:          cfg.OutputFormat,
			Quality:         cfg.OutputQuality,
			MetadataFormats: cfg.MetadataFormats,
		},
		LRUPath:   lruPath,
		Publisher: manager.LogPublisher{Log: log},
		Logger:    &log,
	}), nil
}

func expandOptional(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return fsutil.ExpandHome(p)
}
