package engine

import (
	"imaged/internal/imageutil"
)

// Defaults applied by WithDefaults when the corresponding Request fields are
// zero. Seed, guidance scale and prompt strength have meaningful zeros and are
// defaulted by callers that can tell "unset" apart.
const (
	DefaultWidth      = 512
	DefaultHeight     = 512
	DefaultNumOutputs = 1
	DefaultSteps      = 25
	DefaultSampler    = "euler_a"
)

// Latent geometry shared by the supported model family.
const (
	latentChannels = 4
	latentFactor   = 8
)

// Precision selects the numeric mode model runtimes should use.
type Precision int

const (
	PrecisionFull Precision = iota
	PrecisionHalf
)

func (p Precision) String() string {
	if p == PrecisionHalf {
		return "half"
	}
	return "full"
}

// Operation is the kind of generation a request asks for.
type Operation int

const (
	OpTextToImage Operation = iota
	OpImageToImage
	OpInpainting
)

func (o Operation) String() string {
	switch o {
	case OpTextToImage:
		return "txt2img"
	case OpImageToImage:
		return "img2img"
	case OpInpainting:
		return "inpainting"
	default:
		return "unknown"
	}
}

// SelectOperation maps the presence of a source image and mask to an
// Operation. A mask without a source image is ignored.
func SelectOperation(hasImage, hasMask bool) Operation {
	switch {
	case !hasImage:
		return OpTextToImage
	case hasMask:
		return OpInpainting
	default:
		return OpImageToImage
	}
}

// Request describes one generation. It is treated as immutable once handed to
// Coordinator.Generate.
type Request struct {
	Prompt         string
	NegativePrompt string
	Seed           int64
	Width          int
	Height         int
	NumOutputs     int
	Steps          int
	GuidanceScale  float64 // 0 disables the prompt; 1 skips the unconditioned pass

	InitImage      imageutil.Source
	InitImageMask  imageutil.Source
	PromptStrength float64 // 0 keeps the source, 1 ignores it

	PreserveInitImageColorProfile bool

	SamplerName     string
	AdapterStrength float64
	SamplerParams   map[string]any

	Progress ProgressSink
}

// Operation returns the operation implied by the request's inputs.
func (r Request) Operation() Operation {
	return SelectOperation(!r.InitImage.IsZero(), !r.InitImageMask.IsZero())
}

// WithDefaults fills unset size, output, step and sampler fields.
func (r Request) WithDefaults() Request {
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if r.NumOutputs == 0 {
		r.NumOutputs = DefaultNumOutputs
	}
	if r.Steps == 0 {
		r.Steps = DefaultSteps
	}
	if r.SamplerName == "" {
		r.SamplerName = DefaultSampler
	}
	return r
}

func (r Request) validate() error {
	if r.Width <= 0 || r.Height <= 0 || r.Width%latentFactor != 0 || r.Height%latentFactor != 0 {
		return ErrInvalidRequest("width and height must be positive multiples of %d, got %dx%d", latentFactor, r.Width, r.Height)
	}
	if r.NumOutputs < 1 {
		return ErrInvalidRequest("num_outputs must be at least 1, got %d", r.NumOutputs)
	}
	if r.Steps < 1 {
		return ErrInvalidRequest("num_inference_steps must be at least 1, got %d", r.Steps)
	}
	if r.PromptStrength < 0 || r.PromptStrength > 1 {
		return ErrInvalidRequest("prompt_strength must be within [0,1], got %g", r.PromptStrength)
	}
	return nil
}

// latentShape returns the per-item latent shape (channels, height, width).
func (r Request) latentShape() []int {
	return []int{latentChannels, r.Height / latentFactor, r.Width / latentFactor}
}
