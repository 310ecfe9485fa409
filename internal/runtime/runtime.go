package runtime

import (
	"context"
	"fmt"
)

// DType identifies the element type of a tensor buffer.
type DType int

const (
	Float32 DType = iota
	Int32
	Int64
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Tensor is a named, typed, fixed-shape buffer owned by an Engine for the
// lifetime of one signature. Callers write inputs before Invoke and read
// outputs after; the buffer itself must not be retained across invocations.
type Tensor struct {
	name  string
	dims  []int
	dtype DType

	// One of these is non-nil depending on dtype. Length always equals
	// NumElements.
	f32 []float32
	i32 []int32
	i64 []int64
}

// NewTensor allocates a zeroed tensor. Panics on non-positive dims, which
// would indicate a broken signature declaration rather than a runtime input.
func NewTensor(name string, dtype DType, dims ...int) *Tensor {
	n := 1
	for _, d := range dims {
		if d <= 0 {
			panic(fmt.Sprintf("tensor %s: invalid dim %d", name, d))
		}
		n *= d
	}
	t := &Tensor{name: name, dims: append([]int(nil), dims...), dtype: dtype}
	switch dtype {
	case Float32:
		t.f32 = make([]float32, n)
	case Int32:
		t.i32 = make([]int32, n)
	case Int64:
		t.i64 = make([]int64, n)
	default:
		panic(fmt.Sprintf("tensor %s: unknown dtype %v", name, dtype))
	}
	return t
}

func (t *Tensor) Name() string { return t.name }
func (t *Tensor) DType() DType { return t.dtype }

// Dims returns a copy of the declared shape.
func (t *Tensor) Dims() []int { return append([]int(nil), t.dims...) }

// NumElements is the product of the declared dims.
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.dims {
		n *= d
	}
	return n
}

// Zero clears the buffer in place.
func (t *Tensor) Zero() {
	switch t.dtype {
	case Float32:
		clear(t.f32)
	case Int32:
		clear(t.i32)
	case Int64:
		clear(t.i64)
	}
}

// Signature is a named callable entry point of a loaded model, with fixed
// sets of named input and output tensors.
type Signature struct {
	Name    string
	Inputs  []*Tensor
	Outputs []*Tensor
}

// Input locates an input tensor by name.
func (s *Signature) Input(name string) (*Tensor, error) {
	for _, t := range s.Inputs {
		if t.name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("signature %s: input %q: %w", s.Name, name, ErrNotFound)
}

// Output locates an output tensor by name.
func (s *Signature) Output(name string) (*Tensor, error) {
	for _, t := range s.Outputs {
		if t.name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("signature %s: output %q: %w", s.Name, name, ErrNotFound)
}

// HasInput reports whether the signature declares an input of that name.
func (s *Signature) HasInput(name string) bool {
	_, err := s.Input(name)
	return err == nil
}

// HasOutput reports whether the signature declares an output of that name.
func (s *Signature) HasOutput(name string) bool {
	_, err := s.Output(name)
	return err == nil
}

// Engine is the narrow interface to the tensor-graph execution engine. The
// engine owns the loaded model and the signature tensors; Invoke runs one
// signature synchronously, reading its current inputs and populating its
// outputs. Implementations are safe for sequential use only; concurrent
// invocations against one Engine need external synchronization.
type Engine interface {
	// Signatures lists the callable entry points resolved at load time.
	Signatures() []string

	// Signature returns the tensor set for a named entry point. The same
	// tensors are returned on every call; writes to inputs persist until
	// the next Invoke overwrites outputs.
	Signature(name string) (*Signature, error)

	// Invoke executes the named signature. On error the outputs are
	// undefined and the current generation request must be abandoned,
	// but the Engine itself remains usable.
	Invoke(ctx context.Context, name string) error

	Close() error
}
