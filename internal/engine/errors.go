package engine

import (
	"errors"
	"fmt"
)

// modelNotLoadedError signals that no generative model is loaded for the backend.
type modelNotLoadedError struct{ backend string }

func (e modelNotLoadedError) Error() string {
	return fmt.Sprintf("the model for %s has not been loaded yet; check the logs for load errors", e.backend)
}

// ErrModelNotLoaded constructs a modelNotLoadedError.
func ErrModelNotLoaded(backend string) error { return modelNotLoadedError{backend: backend} }

// IsModelNotLoaded reports whether err indicates a missing model.
func IsModelNotLoaded(err error) bool {
	var e modelNotLoadedError
	return errors.As(err, &e)
}

// unsupportedOperationError signals that the loaded model cannot run the selected operation.
type unsupportedOperationError struct {
	op             Operation
	inpaintingOnly bool
	supported      []Operation
}

func (e unsupportedOperationError) Error() string {
	if e.inpaintingOnly {
		return fmt.Sprintf("this model does not support %s; it requires an initial image and mask", e.op)
	}
	return fmt.Sprintf("this model does not support %s; supported operations: %v", e.op, e.supported)
}

// ErrUnsupportedOperation constructs an unsupportedOperationError. inpaintingOnly
// selects the message for models that expose nothing but inpainting.
func ErrUnsupportedOperation(op Operation, inpaintingOnly bool, supported []Operation) error {
	return unsupportedOperationError{op: op, inpaintingOnly: inpaintingOnly, supported: supported}
}

// IsUnsupportedOperation reports whether err indicates an unsupported operation.
func IsUnsupportedOperation(err error) bool {
	var e unsupportedOperationError
	return errors.As(err, &e)
}

// IsInpaintingOnly reports whether err is an unsupported-operation error raised
// by a model that only supports inpainting.
func IsInpaintingOnly(err error) bool {
	var e unsupportedOperationError
	return errors.As(err, &e) && e.inpaintingOnly
}

// unsupportedSamplerError signals a sampler name missing from the active registry.
type unsupportedSamplerError struct{ name, backend string }

func (e unsupportedSamplerError) Error() string {
	return fmt.Sprintf("the sampler %q is not supported by the %s backend", e.name, e.backend)
}

// ErrUnsupportedSampler constructs an unsupportedSamplerError.
func ErrUnsupportedSampler(name, backend string) error {
	return unsupportedSamplerError{name: name, backend: backend}
}

// IsUnsupportedSampler reports whether err indicates an unknown sampler.
func IsUnsupportedSampler(err error) bool {
	var e unsupportedSamplerError
	return errors.As(err, &e)
}

// invalidRequestError signals a malformed request (bad dimensions, strength, counts).
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return "invalid request: " + e.msg }

// ErrInvalidRequest constructs an invalidRequestError.
func ErrInvalidRequest(format string, args ...any) error {
	return invalidRequestError{msg: fmt.Sprintf(format, args...)}
}

// IsInvalidRequest reports whether err indicates a malformed request.
func IsInvalidRequest(err error) bool {
	var e invalidRequestError
	return errors.As(err, &e)
}
