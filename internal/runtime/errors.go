package runtime

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a missing tensor or signature name. It indicates a
// mismatch between the driver and the loaded model, not a transient fault.
var ErrNotFound = errors.New("not found")

// LoadError wraps a failure to load or validate a model artifact.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ShapeError reports a write or read whose element count does not match the
// tensor's declared shape.
type ShapeError struct {
	Tensor string
	Want   int
	Got    int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("tensor %s: shape mismatch: want %d elements, got %d", e.Tensor, e.Want, e.Got)
}

// TypeError reports an access with the wrong element type.
type TypeError struct {
	Tensor string
	Want   DType
	Got    DType
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("tensor %s: type mismatch: tensor is %v, access is %v", e.Tensor, e.Want, e.Got)
}

// InvokeError wraps a failed signature execution. The generation request
// that triggered it cannot be resumed; retrying mid-sequence would leave the
// cache state inconsistent with the token sequence.
type InvokeError struct {
	Signature string
	Err       error
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.Signature, e.Err)
}

func (e *InvokeError) Unwrap() error { return e.Err }
