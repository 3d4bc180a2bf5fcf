package engine

import (
	"context"
	"fmt"
	"math/rand/v2"

	"imaged/internal/tensor"
)

// Schedule defaults (SD 1.x noise range).
const (
	defaultSigmaMin = 0.0292
	defaultSigmaMax = 14.6146
	defaultRho      = 7.0
)

// SampleParams is the input of one native sampling invocation.
type SampleParams struct {
	Sampler       string
	Shape         []int // per-item latent shape: channels, height, width
	Batch         int
	Cond          Conditioning
	GuidanceScale float64
	Steps         int
	SamplerParams map[string]any
	Precision     Precision
	RNG           *rand.Rand

	// Image-to-image inputs; InitLatent nil means text-to-image.
	InitLatent *tensor.Tensor
	Mask       *tensor.Tensor // 1 regenerates, 0 keeps the source
	Strength   float64

	Progress ProgressSink
}

// Dispatcher runs a named sampler from its registry against a NativeModel.
type Dispatcher struct {
	model    NativeModel
	samplers map[string]Sampler
}

// NewDispatcher binds a model to a sampler registry. A nil registry uses NativeSamplers.
func NewDispatcher(model NativeModel, samplers map[string]Sampler) *Dispatcher {
	if samplers == nil {
		samplers = NativeSamplers
	}
	return &Dispatcher{model: model, samplers: samplers}
}

// Supports reports whether name is in the registry.
func (d *Dispatcher) Supports(name string) bool {
	_, ok := d.samplers[name]
	return ok
}

// Sample produces a [batch, c, h, w] latent batch.
func (d *Dispatcher) Sample(ctx context.Context, p SampleParams) (*tensor.Tensor, error) {
	sampler, ok := d.samplers[p.Sampler]
	if !ok {
		return nil, ErrUnsupportedSampler(p.Sampler, "native")
	}
	shape := append([]int{p.Batch}, p.Shape...)
	sigmas := karrasSigmas(p.Steps,
		paramFloat(p.SamplerParams, "sigma_min", defaultSigmaMin),
		paramFloat(p.SamplerParams, "sigma_max", defaultSigmaMax),
		paramFloat(p.SamplerParams, "rho", defaultRho))

	var x, noise *tensor.Tensor
	offset := 0
	if p.InitLatent == nil {
		x = tensor.Randn(p.RNG, shape...).Scale(sigmas[0])
	} else {
		if !shapeEqual(p.InitLatent.Shape, shape) {
			return nil, fmt.Errorf("init latent shape %v does not match requested %v", p.InitLatent.Shape, shape)
		}
		if p.Mask != nil && !shapeEqual(p.Mask.Shape, shape) {
			return nil, fmt.Errorf("mask shape %v does not match requested %v", p.Mask.Shape, shape)
		}
		enc := int(p.Strength * float64(p.Steps))
		if enc <= 0 {
			return p.InitLatent.Clone(), nil
		}
		offset = p.Steps - enc
		sigmas = sigmas[offset:]
		noise = tensor.Randn(p.RNG, shape...)
		x = p.InitLatent.AddScaled(noise, sigmas[0])
	}

	denoise := func(ctx context.Context, x *tensor.Tensor, sigma float64) (*tensor.Tensor, error) {
		cond, err := d.model.Denoise(ctx, p.Precision, x, sigma, p.Cond.Positive)
		if err != nil {
			return nil, err
		}
		if p.GuidanceScale == 1 {
			return cond, nil
		}
		uncond, err := d.model.Denoise(ctx, p.Precision, x, sigma, p.Cond.Negative)
		if err != nil {
			return nil, err
		}
		return uncond.AddScaled(cond.Sub(uncond), p.GuidanceScale), nil
	}

	step := func(ctx context.Context, i int, x *tensor.Tensor) (*tensor.Tensor, error) {
		if p.Mask != nil && p.InitLatent != nil {
			// keep the unmasked region on the source trajectory
			x = x.Blend(p.InitLatent.AddScaled(noise, sigmas[i+1]), p.Mask)
		}
		if err := notifyStep(p.Progress, StepInfo{Step: offset + i, Total: p.Steps, Latents: x}); err != nil {
			return nil, err
		}
		return x, nil
	}

	return sampler(ctx, denoise, x, sigmas, p.RNG, p.SamplerParams, step)
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
