package types

// DefaultSeed is used when a generate request omits seed.
const DefaultSeed int64 = 42

// DefaultPromptStrength is used when a generate request omits prompt_strength.
const DefaultPromptStrength = 0.8

// DefaultGuidanceScale is used when a generate request omits guidance_scale.
const DefaultGuidanceScale = 7.5

// GenerateRequest represents an image generation request payload.
type GenerateRequest struct {
	// Optional model identifier. If empty, the server default is used.
	// example: sd-v1-5.safetensors
	Model string `json:"model,omitempty" example:"sd-v1-5.safetensors"`
	// Prompt text describing the image; empty generates unconditioned.
	// example: a lighthouse at dusk, oil painting
	Prompt string `json:"prompt,omitempty" example:"a lighthouse at dusk, oil painting"`
	// Things the image should not contain.
	// example: blurry, low quality
	NegativePrompt string `json:"negative_prompt,omitempty" example:"blurry, low quality"`
	// Random seed; omitted means 42.
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
	// Output width in pixels (multiple of 8).
	// example: 512
	Width int `json:"width,omitempty" example:"512"`
	// Output height in pixels (multiple of 8).
	// example: 512
	Height int `json:"height,omitempty" example:"512"`
	// Number of images to generate.
	// example: 1
	NumOutputs int `json:"num_outputs,omitempty" example:"1"`
	// Number of denoising steps.
	// example: 25
	NumInferenceSteps int `json:"num_inference_steps,omitempty" example:"25"`
	// Classifier-free guidance scale; omitted means 7.5, 0 ignores the prompt.
	// example: 7.5
	GuidanceScale *float64 `json:"guidance_scale,omitempty" example:"7.5"`
	// Source image as a data URI or a server-side path (image-to-image / inpainting).
	InitImage string `json:"init_image,omitempty"`
	// Mask as a data URI or path; white regions are regenerated.
	InitImageMask string `json:"init_image_mask,omitempty"`
	// How strongly the source image is replaced, 0..1; omitted means 0.8.
	// example: 0.8
	PromptStrength *float64 `json:"prompt_strength,omitempty" example:"0.8"`
	// Match output colours to the source image.
	PreserveInitImageColorProfile bool `json:"preserve_init_image_color_profile,omitempty"`
	// Sampler name from the active backend's registry.
	// example: euler_a
	SamplerName string `json:"sampler_name,omitempty" example:"euler_a"`
	// Hypernetwork or LoRA strength.
	// example: 0.5
	AdapterStrength float64 `json:"adapter_strength,omitempty" example:"0.5"`
	// Extra sampler-specific parameters (e.g. eta, s_noise, sigma_min).
	SamplerParams map[string]any `json:"sampler_params,omitempty"`
	// If true, stream per-step progress lines before the final result.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
}

// GenerateProgress is one NDJSON progress line.
type GenerateProgress struct {
	Step  int `json:"step" example:"3"`
	Total int `json:"total" example:"25"`
}

// GenerateResult is the final NDJSON line of a generation.
type GenerateResult struct {
	Done bool `json:"done" example:"true"`
	// Base64-encoded PNG images, in generation order.
	Images []string `json:"images"`
	// example: 42
	Seed int64 `json:"seed" example:"42"`
	// example: native
	Backend string `json:"backend" example:"native"`
	// example: txt2img
	Operation string `json:"operation" example:"txt2img"`
	// Files written to the output directory, when saving is configured.
	Files []string `json:"files,omitempty"`
}

// SwitchRequest asks the server to preload a model in the background.
type SwitchRequest struct {
	// example: sd-v1-5.safetensors
	Model string `json:"model" example:"sd-v1-5.safetensors"`
}

// SwitchResponse carries the background operation id.
type SwitchResponse struct {
	// example: 2f0c8a9e-6a57-4c43-9f0e-0d6f1f3f5a11
	Op string `json:"op" example:"2f0c8a9e-6a57-4c43-9f0e-0d6f1f3f5a11"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// InstanceStatus summarizes a loaded instance for /status.
type InstanceStatus struct {
	// ID of the model this instance serves.
	// example: sd-v1-5.safetensors
	ModelID string `json:"model_id" example:"sd-v1-5.safetensors"`
	// Current lifecycle state of the instance (loading, ready, draining).
	// example: ready
	State string `json:"state" example:"ready"`
	// Generation stage of the in-flight request, if any.
	// example: sampling
	Stage string `json:"stage,omitempty" example:"sampling"`
	// Backend driving this instance (native or alternate).
	// example: native
	Backend string `json:"backend" example:"native"`
	// Last time this instance served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Estimated VRAM usage in MB.
	// example: 2100
	EstVRAMMB int `json:"est_vram_mb" example:"2100"`
	// Current queue length for incoming requests.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Number of in-flight requests currently being processed.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests allowed before backpressure triggers.
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded/managed instances.
	Instances []InstanceStatus `json:"instances"`
	// VRAM budget in MB across all instances.
	// example: 8192
	BudgetMB int `json:"budget_mb" example:"8192"`
	// Estimated used VRAM in MB.
	// example: 2048
	UsedMB int `json:"used_est_mb" example:"2048"`
	// Reserved VRAM margin in MB.
	// example: 512
	MarginMB int `json:"margin_mb" example:"512"`
	// Optional top-level error message.
	Error string `json:"error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of evictions performed to free VRAM.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total number of model loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Total number of completed generations.
	// example: 40
	GenerationsTotal uint64 `json:"generations_total" example:"40"`
	// Overall manager state (e.g., loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Number of instances currently warming up (loading).
	// example: 1
	WarmupsInProgress int `json:"warmups_in_progress" example:"1"`
	// Number of instances currently draining (unload in progress).
	// example: 1
	DrainingCount int `json:"draining_count" example:"1"`
}
