package engine

import (
	"context"
	"fmt"
	"image"
	"sort"

	"imaged/internal/imageutil"
	"imaged/internal/tensor"
)

// AlternateSchedulers is the alternate-backend scheduler registry. It is
// disjoint from NativeSamplers: names valid here need not be valid there.
var AlternateSchedulers = map[string]SchedulerSpec{
	"ddim":    {Sampler: "ddim", Scheduler: "DDIMScheduler"},
	"plms":    {Sampler: "plms", Scheduler: "PNDMScheduler"},
	"heun":    {Sampler: "heun", Scheduler: "HeunDiscreteScheduler"},
	"euler":   {Sampler: "euler", Scheduler: "EulerDiscreteScheduler"},
	"euler_a": {Sampler: "euler_a", Scheduler: "EulerAncestralDiscreteScheduler"},
	"dpm2":    {Sampler: "dpm2", Scheduler: "KDPM2DiscreteScheduler"},
	"dpm2_a":  {Sampler: "dpm2_a", Scheduler: "KDPM2AncestralDiscreteScheduler"},
	"lms":     {Sampler: "lms", Scheduler: "LMSDiscreteScheduler"},
}

// Common carries the parameters every pipeline accepts.
type Common struct {
	PromptEmbeds         *tensor.Tensor
	NegativePromptEmbeds *tensor.Tensor
	GuidanceScale        float64
	Steps                int
	NumImages            int
	Seed                 int64
	Precision            Precision
	// Callback is called after every pipeline step. Returning an error aborts the run.
	Callback func(step int, latents *tensor.Tensor) error
}

// Command is the input of one Pipeline.Run. Each variant carries only the
// parameters its pipeline class accepts.
type Command interface {
	Params() Common
	command()
}

// TextToImageCommand drives a text-to-image pipeline.
type TextToImageCommand struct {
	Common
	Width, Height int
}

// ImageToImageCommand drives an image-to-image pipeline. The output shape
// follows the source image.
type ImageToImageCommand struct {
	Common
	Image    image.Image
	Strength float64
}

// InpaintCommand drives a dedicated inpainting pipeline, which fixes its
// strength internally.
type InpaintCommand struct {
	Common
	Image, Mask   image.Image
	Width, Height int
}

// LegacyInpaintCommand drives an inpainting pipeline built on image-to-image.
type LegacyInpaintCommand struct {
	Common
	Image, Mask image.Image
	Strength    float64
}

func (c TextToImageCommand) Params() Common   { return c.Common }
func (c ImageToImageCommand) Params() Common  { return c.Common }
func (c InpaintCommand) Params() Common       { return c.Common }
func (c LegacyInpaintCommand) Params() Common { return c.Common }

func (TextToImageCommand) command()   {}
func (ImageToImageCommand) command()  {}
func (InpaintCommand) command()       {}
func (LegacyInpaintCommand) command() {}

// AlternateModel is what the alternate runtime exposes once loaded: the
// pipelines it supports, the encoder shared by them and an optional LoRA.
type AlternateModel struct {
	Pipelines map[Operation]Pipeline
	Encoder   TextEncoder
	LoRA      LoRA
}

// AlternateBackend delegates whole requests to prebuilt pipelines.
type AlternateBackend struct {
	model   *AlternateModel
	adapter *AdapterPatcher
}

// NewAlternateBackend wraps model. A nil model yields a backend that reports
// itself as not loaded.
func NewAlternateBackend(model *AlternateModel) *AlternateBackend {
	b := &AlternateBackend{model: model}
	if model != nil && model.LoRA != nil {
		b.adapter = NewAdapterPatcher(model.LoRA)
	}
	return b
}

func (b *AlternateBackend) Name() string { return "alternate" }

func (b *AlternateBackend) Loaded() bool {
	return b != nil && b.model != nil && b.model.Encoder != nil && len(b.model.Pipelines) > 0
}

// Adapter returns the LoRA patcher, or nil when the model has no LoRA.
func (b *AlternateBackend) Adapter() *AdapterPatcher { return b.adapter }

// Operations lists the supported operations in ascending order.
func (b *AlternateBackend) Operations() []Operation {
	ops := make([]Operation, 0, len(b.model.Pipelines))
	for op := range b.model.Pipelines {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}

// Generate implements GenerationBackend.
func (b *AlternateBackend) Generate(ctx context.Context, run *Run) ([]image.Image, error) {
	req := run.Request
	pipe, ok := b.model.Pipelines[run.Operation]
	if !ok {
		ops := b.Operations()
		onlyInpaint := len(ops) == 1 && ops[0] == OpInpainting
		return nil, ErrUnsupportedOperation(run.Operation, onlyInpaint, ops)
	}
	spec, ok := AlternateSchedulers[req.SamplerName]
	if !ok {
		return nil, ErrUnsupportedSampler(req.SamplerName, b.Name())
	}
	pipe.SetScheduler(spec)

	width, height := imageutil.ClampTo64(req.Width), imageutil.ClampTo64(req.Height)
	var src, mask image.Image
	if run.Operation != OpTextToImage {
		img, err := req.InitImage.Resolve()
		if err != nil {
			return nil, fmt.Errorf("init image: %w", err)
		}
		src = imageutil.Resize(imageutil.ToRGB(img), width, height, false)
	}
	if run.Operation == OpInpainting {
		m, err := req.InitImageMask.Resolve()
		if err != nil {
			return nil, fmt.Errorf("init image mask: %w", err)
		}
		mask = imageutil.Resize(imageutil.ToRGB(m), width, height, false)
	}

	if b.adapter != nil {
		if err := b.adapter.Apply(req.AdapterStrength); err != nil {
			return nil, err
		}
	}

	run.Enter(StageEncoding)
	cond, err := EncodeConditioning(ctx, b.model.Encoder, run.Precision, req.Prompt, req.NegativePrompt, 1)
	if err != nil {
		return nil, err
	}

	common := Common{
		PromptEmbeds:         cond.Positive,
		NegativePromptEmbeds: cond.Negative,
		GuidanceScale:        req.GuidanceScale,
		Steps:                req.Steps,
		NumImages:            req.NumOutputs,
		Seed:                 req.Seed,
		Precision:            run.Precision,
		Callback: func(step int, latents *tensor.Tensor) error {
			return notifyStep(req.Progress, StepInfo{Step: step, Total: req.Steps, Latents: latents, Pipeline: pipe})
		},
	}
	cmd, err := buildCommand(pipe.Class(), common, src, mask, width, height, req.PromptStrength)
	if err != nil {
		return nil, err
	}

	run.Enter(StageSampling)
	images, err := pipe.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s pipeline: %w", pipe.Class(), err)
	}
	return images, nil
}

func buildCommand(class PipelineClass, c Common, src, mask image.Image, width, height int, strength float64) (Command, error) {
	switch class {
	case ClassTextToImage:
		return TextToImageCommand{Common: c, Width: width, Height: height}, nil
	case ClassImageToImage:
		return ImageToImageCommand{Common: c, Image: src, Strength: strength}, nil
	case ClassInpaint:
		return InpaintCommand{Common: c, Image: src, Mask: mask, Width: width, Height: height}, nil
	case ClassInpaintLegacy:
		return LegacyInpaintCommand{Common: c, Image: src, Mask: mask, Strength: strength}, nil
	default:
		return nil, fmt.Errorf("unknown pipeline class %d", class)
	}
}
