package types

// Model formats recognised by the registry scanner.
const (
	FormatSafetensors = "safetensors"
	FormatCheckpoint  = "ckpt"
	FormatPickle      = "pt"
	FormatDiffusers   = "diffusers"
)

// Model represents a discoverable diffusion model on disk.
type Model struct {
	// Stable identifier for the model.
	// example: sd-v1-5.safetensors
	ID string `json:"id" example:"sd-v1-5.safetensors"`
	// Human-friendly name.
	// example: sd-v1-5
	Name string `json:"name" example:"sd-v1-5"`
	// Absolute path to the weights file, or to the directory of a diffusers model.
	// example: /home/user/models/stable-diffusion/sd-v1-5.safetensors
	Path string `json:"path" example:"/home/user/models/stable-diffusion/sd-v1-5.safetensors"`
	// On-disk format: safetensors, ckpt, pt or diffusers.
	// example: safetensors
	Format string `json:"format" example:"safetensors"`
	// Optional family (e.g., sd1, sd2, sdxl).
	// example: sd1
	Family string `json:"family,omitempty" example:"sd1"`
}
