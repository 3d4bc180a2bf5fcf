package engine

import (
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// seedStream is the second PCG word; the request seed is the first.
const seedStream = 0x9e3779b97f4a7c15

// Run is the request-scoped state handed to a backend. It lives for exactly one
// Coordinator.Generate call.
type Run struct {
	ID        string
	Request   Request
	Operation Operation
	Precision Precision
	RNG       *rand.Rand
	Cache     *LatentCache
	Log       zerolog.Logger

	stages  StageObserver
	reclaim func()
}

// Enter records a stage transition.
func (r *Run) Enter(s Stage) {
	r.Log.Debug().Str("stage", string(s)).Msg("generation stage")
	r.stages.Enter(r.ID, s)
}

// Reclaim runs the memory reclamation hook between passes.
func (r *Run) Reclaim() {
	if r.reclaim != nil {
		r.reclaim()
	}
}

// Options configures a Coordinator. Zero values select defaults.
type Options struct {
	Precision Precision
	Logger    *zerolog.Logger
	Stages    StageObserver
	// Reclaim is called after every sampling pass; defaults to runtime.GC.
	Reclaim func()
}

// Coordinator is the entry point of the engine. It validates the request,
// prepares the request-scoped Run, delegates to its backend and always clears
// request-scoped state before returning.
type Coordinator struct {
	backend   GenerationBackend
	precision Precision
	log       zerolog.Logger
	stages    StageObserver
	reclaim   func()
}

// NewCoordinator binds a coordinator to a backend.
func NewCoordinator(backend GenerationBackend, opts Options) *Coordinator {
	c := &Coordinator{
		backend:   backend,
		precision: opts.Precision,
		log:       zerolog.Nop(),
		stages:    opts.Stages,
		reclaim:   opts.Reclaim,
	}
	if opts.Logger != nil {
		c.log = *opts.Logger
	}
	if c.stages == nil {
		c.stages = noopStages{}
	}
	if c.reclaim == nil {
		c.reclaim = runtime.GC
	}
	return c
}

// Backend returns the bound backend.
func (c *Coordinator) Backend() GenerationBackend { return c.backend }

// Generate produces req.NumOutputs images, in a deterministic order for a
// fixed seed. No partial results are returned on error.
func (c *Coordinator) Generate(ctx context.Context, req Request) ([]image.Image, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Precision: c.precision,
		Cache:     &LatentCache{},
		stages:    c.stages,
		reclaim:   c.reclaim,
	}
	run.Log = c.log.With().Str("run_id", run.ID).Logger()
	run.Enter(StageIdle)
	defer func() {
		run.Enter(StageCleanup)
		run.Cache.Clear()
	}()

	run.Enter(StageValidatingModel)
	if c.backend == nil {
		return nil, ErrModelNotLoaded("generation")
	}
	if !c.backend.Loaded() {
		return nil, ErrModelNotLoaded(c.backend.Name())
	}

	req = req.WithDefaults()
	if err := req.validate(); err != nil {
		return nil, err
	}
	run.Request = req
	run.Operation = req.Operation()
	run.RNG = rand.New(rand.NewPCG(uint64(req.Seed), seedStream))
	run.Log = run.Log.With().
		Str("backend", c.backend.Name()).
		Str("operation", run.Operation.String()).
		Str("sampler", req.SamplerName).
		Int64("seed", req.Seed).
		Logger()

	start := time.Now()
	run.Log.Info().Int("width", req.Width).Int("height", req.Height).
		Int("outputs", req.NumOutputs).Int("steps", req.Steps).
		Str("precision", c.precision.String()).Msg("generation start")

	images, err := c.backend.Generate(ctx, run)
	if err != nil {
		run.Log.Error().Err(err).Dur("dur", time.Since(start)).Msg("generation failed")
		return nil, err
	}
	if len(images) != req.NumOutputs {
		return nil, fmt.Errorf("%s backend returned %d images, want %d", c.backend.Name(), len(images), req.NumOutputs)
	}
	run.Enter(StageDone)
	run.Log.Info().Dur("dur", time.Since(start)).Msg("generation done")
	return images, nil
}
