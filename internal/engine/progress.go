package engine

import "imaged/internal/tensor"

// StepInfo describes one completed sampling step.
type StepInfo struct {
	Step    int
	Total   int
	Latents *tensor.Tensor
	// Pipeline is the alternate-backend pipeline running the step; nil on the native path.
	Pipeline Pipeline
}

// ProgressSink receives per-step progress. Returning an error cancels the
// request: the error unwinds through the sampler and is returned to the caller.
type ProgressSink interface {
	OnStep(StepInfo) error
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(StepInfo) error

func (f ProgressFunc) OnStep(s StepInfo) error { return f(s) }

func notifyStep(sink ProgressSink, s StepInfo) error {
	if sink == nil {
		return nil
	}
	return sink.OnStep(s)
}

// Stage is a coordinator state.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageValidatingModel  Stage = "validating_model"
	StageEncoding         Stage = "encoding"
	StageSampling         Stage = "sampling"
	StageDecoding         Stage = "decoding"
	StageColorReconciling Stage = "color_reconciling"
	StageDone             Stage = "done"
	StageCleanup          Stage = "cleanup"
)

// StageObserver is told about every stage a run enters. Implementations must
// be fast and must not panic.
type StageObserver interface {
	Enter(runID string, s Stage)
}

// StageFunc adapts a function to StageObserver.
type StageFunc func(runID string, s Stage)

func (f StageFunc) Enter(runID string, s Stage) { f(runID, s) }

type noopStages struct{}

func (noopStages) Enter(string, Stage) {}
