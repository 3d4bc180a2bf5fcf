// Package engine coordinates one image generation request end to end. It is
// structured into small files by concern:
//
//   - coordinator.go: Coordinator, the request entry point, and Run, the
//     request-scoped state handed to a backend.
//   - request.go: Request, defaults, validation and Operation selection.
//   - backend.go: the GenerationBackend contract and the model interfaces the
//     backends drive (NativeModel, TextEncoder, Pipeline, LoRA, Hypernetwork).
//   - native.go: NativeBackend (conditioning, sampling, latent cache, decode,
//     colour reconciliation).
//   - alternate.go: AlternateBackend (pipeline selection, command variants,
//     scheduler substitution, LoRA patching, padded prompt embeddings).
//   - dispatcher.go, samplers.go: native sampler registry and dispatch.
//   - conditioning.go, latent_cache.go, adapter.go: leaf components.
//   - progress.go: ProgressSink and StageObserver.
//   - errors.go: error types and helpers (IsModelNotLoaded, IsUnsupportedSampler, ...).
//
// The engine never loads weights or runs network forward passes itself; those
// are supplied by the caller through the interfaces in backend.go. At most one
// Generate call may be in flight per backend; callers (see internal/manager)
// serialise access per loaded model.
package engine
