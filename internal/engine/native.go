package engine

import (
	"context"
	"fmt"
	"image"

	"imaged/internal/imageutil"
	"imaged/internal/tensor"
)

// NativeBackend drives a NativeModel step by step through the native sampler
// registry.
type NativeBackend struct {
	model        NativeModel
	hypernetwork Hypernetwork
	dispatcher   *Dispatcher
	passes       int
}

// NewNativeBackend builds a native backend. hypernetwork may be nil; a nil
// registry selects NativeSamplers.
func NewNativeBackend(model NativeModel, hypernetwork Hypernetwork, samplers map[string]Sampler) *NativeBackend {
	return &NativeBackend{
		model:        model,
		hypernetwork: hypernetwork,
		dispatcher:   NewDispatcher(model, samplers),
		passes:       1,
	}
}

func (b *NativeBackend) Name() string { return "native" }

func (b *NativeBackend) Loaded() bool { return b != nil && b.model != nil }

// Generate implements GenerationBackend.
func (b *NativeBackend) Generate(ctx context.Context, run *Run) ([]image.Image, error) {
	req := run.Request
	if !b.dispatcher.Supports(req.SamplerName) {
		return nil, ErrUnsupportedSampler(req.SamplerName, b.Name())
	}
	if b.hypernetwork != nil {
		b.hypernetwork.SetStrength(req.AdapterStrength)
	}

	run.Enter(StageEncoding)
	cond, err := EncodeConditioning(ctx, b.model, run.Precision, req.Prompt, req.NegativePrompt, req.NumOutputs)
	if err != nil {
		return nil, err
	}

	params := SampleParams{
		Sampler:       req.SamplerName,
		Shape:         req.latentShape(),
		Batch:         req.NumOutputs,
		Cond:          cond,
		GuidanceScale: req.GuidanceScale,
		Steps:         req.Steps,
		SamplerParams: req.SamplerParams,
		Precision:     run.Precision,
		RNG:           run.RNG,
		Progress:      req.Progress,
	}

	images := make([]image.Image, 0, req.NumOutputs*b.passes)
	for pass := 0; pass < b.passes; pass++ {
		var out []image.Image
		if run.Operation == OpTextToImage {
			out, err = b.textToImage(ctx, run, params)
		} else {
			out, err = b.imageToImage(ctx, run, params)
		}
		if err != nil {
			return nil, err
		}
		images = append(images, out...)
		run.Reclaim()
	}
	return images, nil
}

func (b *NativeBackend) textToImage(ctx context.Context, run *Run, p SampleParams) ([]image.Image, error) {
	run.Enter(StageSampling)
	samples, err := b.dispatcher.Sample(ctx, p)
	if err != nil {
		return nil, err
	}
	return b.decode(ctx, run, samples)
}

func (b *NativeBackend) imageToImage(ctx context.Context, run *Run, p SampleParams) ([]image.Image, error) {
	req := run.Request
	src, err := req.InitImage.Resolve()
	if err != nil {
		return nil, fmt.Errorf("init image: %w", err)
	}
	mask, err := req.InitImageMask.Resolve()
	if err != nil {
		return nil, fmt.Errorf("init image mask: %w", err)
	}
	// always derive latents from a source at the requested size
	resized := imageutil.Resize(imageutil.ToRGB(src), req.Width, req.Height, false)

	latent, maskT, err := run.Cache.Get(func() (*tensor.Tensor, *tensor.Tensor, error) {
		return b.encodeSource(ctx, run, resized, mask)
	})
	if err != nil {
		return nil, err
	}
	p.InitLatent, p.Mask, p.Strength = latent, maskT, req.PromptStrength

	run.Enter(StageSampling)
	samples, err := b.dispatcher.Sample(ctx, p)
	if err != nil {
		return nil, err
	}
	images, err := b.decode(ctx, run, samples)
	if err != nil {
		return nil, err
	}
	if req.PreserveInitImageColorProfile {
		run.Enter(StageColorReconciling)
		for i, img := range images {
			images[i] = imageutil.ApplyColorProfile(resized, img)
		}
	}
	return images, nil
}

func (b *NativeBackend) encodeSource(ctx context.Context, run *Run, src, mask image.Image) (*tensor.Tensor, *tensor.Tensor, error) {
	req := run.Request
	shape := req.latentShape()
	latent, err := b.model.EncodeImage(ctx, run.Precision, src)
	if err != nil {
		return nil, nil, fmt.Errorf("encode init image: %w", err)
	}
	if !shapeEqual(latent.Shape, append([]int{1}, shape...)) {
		return nil, nil, fmt.Errorf("encoded init image has shape %v, want [1 %d %d %d]", latent.Shape, shape[0], shape[1], shape[2])
	}
	latent = latent.Repeat(req.NumOutputs)
	if mask == nil {
		return latent, nil, nil
	}
	lum := imageutil.Luminance(imageutil.Resize(mask, shape[2], shape[1], false))
	m := tensor.New(1, shape[0], shape[1], shape[2])
	plane := shape[1] * shape[2]
	for c := 0; c < shape[0]; c++ {
		copy(m.Data[c*plane:(c+1)*plane], lum)
	}
	return latent, m.Repeat(req.NumOutputs), nil
}

func (b *NativeBackend) decode(ctx context.Context, run *Run, samples *tensor.Tensor) ([]image.Image, error) {
	run.Enter(StageDecoding)
	images, err := b.model.DecodeLatents(ctx, run.Precision, samples)
	if err != nil {
		return nil, fmt.Errorf("decode latents: %w", err)
	}
	return images, nil
}
