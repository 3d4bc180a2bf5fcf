package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"imaged/internal/registry"
	"imaged/pkg/types"
)

// defaultCLIOutputDir is used by `imaged generate` when no output dir is configured.
const defaultCLIOutputDir = "outputs"

func newGenerateCmd(opts *options) *cobra.Command {
	var (
		req      types.GenerateRequest
		seed     int64
		strength float64
		guidance float64
		progress bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate images once and save them to the output directory",
		Example: "  imaged generate --model sd-v1-5.safetensors --prompt \"a lighthouse at dusk\"\n" +
			"  imaged generate --prompt \"a red door\" --init-image door.png --mask door-mask.png --metadata json",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}
			if cmd.Flags().Changed("guidance-scale") {
				req.GuidanceScale = &guidance
			}
			if cmd.Flags().Changed("prompt-strength") {
				req.PromptStrength = &strength
			}
			if opts.cfg.OutputDir == "" {
				opts.cfg.OutputDir = defaultCLIOutputDir
			}
			mgr, err := opts.newManager()
			if err != nil {
				return err
			}
			defer mgr.Close()

			var w io.Writer
			if progress {
				req.Stream = true
				w = &progressLogger{log: opts.log}
			}
			res, err := mgr.Generate(cmd.Context(), req, w, nil)
			if err != nil {
				return err
			}
			opts.log.Info().Int64("seed", res.Seed).Str("backend", res.Backend).Str("operation", res.Operation).
				Int("images", len(res.Images)).Msg("generation done")
			for _, f := range res.Files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Model, "model", "", "Model id (defaults to --default-model)")
	f.StringVar(&req.Prompt, "prompt", "", "Prompt text (empty generates unconditioned)")
	f.StringVar(&req.NegativePrompt, "negative-prompt", "", "Negative prompt text")
	f.Int64Var(&seed, "seed", types.DefaultSeed, "Random seed")
	f.IntVar(&req.Width, "width", 0, "Output width (multiple of 8)")
	f.IntVar(&req.Height, "height", 0, "Output height (multiple of 8)")
	f.IntVar(&req.NumOutputs, "num-outputs", 0, "Number of images")
	f.IntVar(&req.NumInferenceSteps, "steps", 0, "Denoising steps")
	f.Float64Var(&guidance, "guidance-scale", types.DefaultGuidanceScale, "Classifier-free guidance scale")
	f.StringVar(&req.SamplerName, "sampler", "", "Sampler name")
	f.StringVar(&req.InitImage, "init-image", "", "Source image path or data URI (image-to-image)")
	f.StringVar(&req.InitImageMask, "mask", "", "Mask image path or data URI (inpainting; white is regenerated)")
	f.Float64Var(&strength, "prompt-strength", types.DefaultPromptStrength, "How strongly the source image is replaced, 0..1")
	f.BoolVar(&req.PreserveInitImageColorProfile, "preserve-colors", false, "Match output colours to the source image")
	f.Float64Var(&req.AdapterStrength, "adapter-strength", 0, "Hypernetwork or LoRA strength")
	f.BoolVar(&progress, "progress", false, "Log per-step progress")
	return cmd
}

// progressLogger turns streamed NDJSON progress lines into log events and
// drops the final result line.
type progressLogger struct {
	log zerolog.Logger
	buf []byte
}

func (p *progressLogger) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		var line struct {
			Step  int  `json:"step"`
			Total int  `json:"total"`
			Done  bool `json:"done"`
		}
		if err := json.Unmarshal(p.buf[:idx], &line); err == nil && !line.Done && line.Total > 0 {
			p.log.Info().Int("step", line.Step).Int("total", line.Total).Msg("sampling")
		}
		p.buf = p.buf[idx+1:]
	}
	return len(b), nil
}

func newModelsCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models found in the models directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := registry.LoadDir(opts.cfg.ModelsDir)
			if err != nil {
				return fmt.Errorf("load models: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(types.ModelsResponse{Models: models})
			}
			for _, m := range models {
				fmt.Fprintf(out, "%s\t%s\t%s\n", m.ID, m.Format, m.Path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of tab separated lines")
	return cmd
}
