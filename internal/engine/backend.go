package engine

import (
	"context"
	"image"

	"imaged/internal/tensor"
)

// GenerationBackend turns a prepared Run into images. NativeBackend and
// AlternateBackend are the two implementations; a Coordinator is bound to one.
type GenerationBackend interface {
	// Name identifies the backend in logs, metrics and errors.
	Name() string
	// Loaded reports whether the backing model is present.
	Loaded() bool
	// Generate runs the request. It must return exactly NumOutputs images or an error.
	Generate(ctx context.Context, run *Run) ([]image.Image, error)
}

// TextEncoder turns a prompt into a [1, seq, dim] conditioning tensor. An empty
// prompt must yield a valid unconditioned embedding.
type TextEncoder interface {
	EncodePrompt(ctx context.Context, prec Precision, text string) (*tensor.Tensor, error)
}

// NativeModel is the diffusion model driven step by step by the native path.
type NativeModel interface {
	TextEncoder
	// Denoise returns the model's estimate of the clean latent for x at noise level sigma.
	Denoise(ctx context.Context, prec Precision, x *tensor.Tensor, sigma float64, cond *tensor.Tensor) (*tensor.Tensor, error)
	// EncodeImage maps an image to a [1, 4, h/8, w/8] latent.
	EncodeImage(ctx context.Context, prec Precision, img image.Image) (*tensor.Tensor, error)
	// DecodeLatents maps a [b, 4, h/8, w/8] batch to b images, in order.
	DecodeLatents(ctx context.Context, prec Precision, latents *tensor.Tensor) ([]image.Image, error)
}

// Hypernetwork is an optional native-path adapter whose strength is read
// during sampling as a multiplier.
type Hypernetwork interface {
	SetStrength(strength float64)
}

// LoRA is a low-rank weight delta. Apply adds alpha times the delta to the
// model weights; Apply(-alpha) exactly reverses Apply(alpha).
type LoRA interface {
	Apply(alpha float64) error
}

// PipelineClass is the concrete parameter contract of an alternate-backend pipeline.
type PipelineClass int

const (
	ClassTextToImage PipelineClass = iota
	ClassImageToImage
	ClassInpaint
	// ClassInpaintLegacy inpaints through the image-to-image path: it derives
	// its shape from the source and honours strength.
	ClassInpaintLegacy
)

func (c PipelineClass) String() string {
	switch c {
	case ClassTextToImage:
		return "text-to-image"
	case ClassImageToImage:
		return "image-to-image"
	case ClassInpaint:
		return "inpaint"
	case ClassInpaintLegacy:
		return "inpaint-legacy"
	default:
		return "unknown"
	}
}

// SchedulerSpec names the scheduler an alternate pipeline should use.
type SchedulerSpec struct {
	Sampler   string
	Scheduler string
}

// Pipeline is a prebuilt, self-contained generation pipeline of the alternate backend.
type Pipeline interface {
	Class() PipelineClass
	SetScheduler(SchedulerSpec)
	Run(ctx context.Context, cmd Command) ([]image.Image, error)
}
