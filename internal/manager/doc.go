// Package manager provides lifecycle, admission and generation coordination for
// loaded image models. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters, Close.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (State, ModelInfo, Instance, Snapshot).
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, ...).
//   - loader.go: the Loader contract that turns registry entries into engine models.
//   - helpers.go: small utilities (model lookup, VRAM estimation).
//   - queue_admission.go: per-instance queueing and generation admission.
//   - instance_ensure.go: EnsureInstance, loading and coordinator binding.
//   - evict.go: eviction logic to fit within VRAM budget.
//   - unload.go: graceful drain and unload.
//   - generate.go: the Generate entry point, NDJSON streaming and output saving.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - ops.go: background Switch.
//   - events.go, eventpub_memory.go: lifecycle and stage events.
//   - lru_persist.go: recency persisted across restarts.
//   - sanity.go: dependency checks.
//
// Weight loading is not part of this module. Without a configured Loader every
// load fails with a dependency-unavailable error, which the HTTP layer maps to 503.
package manager
