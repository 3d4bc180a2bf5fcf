package manager

import (
	"context"

	"imaged/internal/engine"
	"imaged/pkg/types"
)

// LoadOptions carries the runtime settings a Loader should honour.
type LoadOptions struct {
	Backend   string
	Precision engine.Precision
	Device    string
}

// LoadedModel holds the runtime objects for one model. Native is used by the
// native backend and Alternate by the alternate backend; a loader only needs to
// fill the one matching LoadOptions.Backend.
type LoadedModel struct {
	Native       engine.NativeModel
	Hypernetwork engine.Hypernetwork
	Alternate    *engine.AlternateModel
	// Close releases weights; may be nil.
	Close func() error
}

func (lm *LoadedModel) close() error {
	if lm == nil || lm.Close == nil {
		return nil
	}
	return lm.Close()
}

// Loader turns a registry entry into runtime objects. Implementations must
// return when ctx is canceled.
type Loader interface {
	Load(ctx context.Context, mdl types.Model, opts LoadOptions) (*LoadedModel, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, mdl types.Model, opts LoadOptions) (*LoadedModel, error)

func (f LoaderFunc) Load(ctx context.Context, mdl types.Model, opts LoadOptions) (*LoadedModel, error) {
	return f(ctx, mdl, opts)
}

// stubLoader is installed when no loader is configured. It refuses to load so
// that a build without a weight runtime fails with 503 instead of producing
// fake images.
type stubLoader struct{}

func (stubLoader) Load(ctx context.Context, mdl types.Model, _ LoadOptions) (*LoadedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrDependencyUnavailable("no weight loader configured for " + mdl.Format + " model " + mdl.ID)
}
