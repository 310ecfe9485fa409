// Package gomlxrt runs ONNX decoder graphs through GoMLX, exposing them
// behind the runtime.Engine interface as two fixed-shape signatures:
// "prefill" (full prompt window) and "decode" (single token step).
//
// The model contract follows cache-externalized decoder exports: int32
// inputs "tokens" and "input_pos", float32 output "logits", and kv cache
// tensors named with a "kv_" prefix appearing as both inputs and outputs.
package gomlxrt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	mlctx "github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/onnx-gomlx/onnx"

	_ "github.com/gomlx/gomlx/backends/default"

	"github.com/quillml/quill/internal/config"
	"github.com/quillml/quill/internal/logger"
	"github.com/quillml/quill/internal/metrics"
	"github.com/quillml/quill/internal/runtime"
)

const (
	sigPrefill = "prefill"
	sigDecode  = "decode"

	tensorTokens   = "tokens"
	tensorInputPos = "input_pos"
	cachePrefix    = "kv_"

	// DefaultPrefillLen is the prompt window compiled into the prefill
	// signature when Options.PrefillLen is zero.
	DefaultPrefillLen = 64
)

// Options configures engine construction.
type Options struct {
	// Backend selects the GoMLX execution backend. BackendAuto follows
	// GOMLX_BACKEND / first registered.
	Backend config.Backend

	// PrefillLen is the static sequence length of the prefill signature,
	// which bounds the prompt length.
	PrefillLen int
}

// signature holds one compiled entry point: the caller-visible tensor set
// plus the GoMLX executor that backs it.
type signature struct {
	sig    *runtime.Signature
	exec   *mlctx.Exec
	inputs []string // arg order for exec, matches sig.Inputs
}

// Engine implements runtime.Engine over an onnx-gomlx model.
type Engine struct {
	mu      sync.Mutex
	model   *onnx.Model
	mlCtx   *mlctx.Context
	backend backends.Backend
	sigs    map[string]*signature
	order   []string
}

var _ runtime.Engine = (*Engine)(nil)

// Open loads an ONNX decoder graph and compiles the prefill and decode
// signatures against the selected backend.
func Open(path string, opts Options) (*Engine, error) {
	start := time.Now()
	prefillLen := opts.PrefillLen
	if prefillLen <= 0 {
		prefillLen = DefaultPrefillLen
	}

	model, err := onnx.ReadFile(path)
	if err != nil {
		return nil, &runtime.LoadError{Path: path, Err: err}
	}

	mlCtx := mlctx.New()
	if err := model.VariablesToContext(mlCtx); err != nil {
		model.Close()
		return nil, &runtime.LoadError{Path: path, Err: fmt.Errorf("loading variables: %w", err)}
	}

	backend, err := newBackend(opts.Backend)
	if err != nil {
		model.Close()
		return nil, &runtime.LoadError{Path: path, Err: err}
	}

	e := &Engine{
		model:   model,
		mlCtx:   mlCtx,
		backend: backend,
		sigs:    make(map[string]*signature, 2),
		order:   []string{sigPrefill, sigDecode},
	}
	for _, entry := range []struct {
		name   string
		seqLen int
	}{
		{sigPrefill, prefillLen},
		{sigDecode, 1},
	} {
		s, err := e.buildSignature(entry.name, entry.seqLen)
		if err != nil {
			e.Close()
			return nil, &runtime.LoadError{Path: path, Err: err}
		}
		e.sigs[entry.name] = s
	}

	metrics.RecordModelLoad(time.Since(start))
	logger.Log.Info("model loaded",
		"path", path,
		"backend", backend.Name(),
		"prefill_len", prefillLen,
		"load_ms", time.Since(start).Milliseconds())
	return e, nil
}

// newBackend maps the configured backend to a GoMLX backend instance.
// GoMLX panics on unavailable backends, so the construction is fenced.
func newBackend(sel config.Backend) (b backends.Backend, err error) {
	var newErr error
	err = exceptions.TryCatch[error](func() {
		switch sel {
		case config.BackendGo:
			b, newErr = backends.NewWithConfig("go")
		case config.BackendXLA:
			b, newErr = backends.NewWithConfig("xla")
		default:
			b, newErr = backends.New()
		}
	})
	if err == nil {
		err = newErr
	}
	if err != nil {
		return nil, fmt.Errorf("creating %v backend: %w", sel, err)
	}
	return b, nil
}

// buildSignature allocates the caller-visible tensors for one entry point
// and compiles an executor at that sequence length. Dynamic ONNX dims
// resolve to the signature's sequence length.
func (e *Engine) buildSignature(name string, seqLen int) (*signature, error) {
	inNames, inShapes := e.model.Inputs()
	outNames, outShapes := e.model.Outputs()

	sig := &runtime.Signature{Name: name}
	for i, in := range inNames {
		dims, err := resolveDims(in, inShapes[i].Dimensions, seqLen)
		if err != nil {
			return nil, fmt.Errorf("signature %s: %w", name, err)
		}
		sig.Inputs = append(sig.Inputs, runtime.NewTensor(in, inputDType(in), dims...))
	}
	for i, out := range outNames {
		dims, err := resolveDims(out, outShapes[i].Dimensions, seqLen)
		if err != nil {
			return nil, fmt.Errorf("signature %s: %w", name, err)
		}
		sig.Outputs = append(sig.Outputs, runtime.NewTensor(out, runtime.Float32, dims...))
	}

	names := append([]string(nil), inNames...)
	graphFn := func(ctx *mlctx.Context, inputs []*graph.Node) []*graph.Node {
		inputMap := make(map[string]*graph.Node, len(inputs))
		for i, n := range names {
			inputMap[n] = inputs[i]
		}
		return e.model.CallGraph(ctx.Reuse(), inputs[0].Graph(), inputMap)
	}
	exec, err := mlctx.NewExecAny(e.backend, e.mlCtx, graphFn)
	if err != nil {
		return nil, fmt.Errorf("signature %s: compiling executor: %w", name, err)
	}

	return &signature{sig: sig, exec: exec, inputs: names}, nil
}

// resolveDims substitutes the signature sequence length for dynamic dims.
// Cache tensors must carry fully static shapes; a dynamic dim there means
// the export does not externalize its cache the way this runtime expects.
func resolveDims(tensorName string, declared []int, seqLen int) ([]int, error) {
	if len(declared) == 0 {
		return nil, fmt.Errorf("tensor %q: scalar shapes unsupported", tensorName)
	}
	dims := make([]int, len(declared))
	for i, d := range declared {
		if d > 0 {
			dims[i] = d
			continue
		}
		if strings.HasPrefix(tensorName, cachePrefix) {
			return nil, fmt.Errorf("tensor %q: dynamic cache dim at axis %d", tensorName, i)
		}
		dims[i] = seqLen
	}
	return dims, nil
}

func inputDType(name string) runtime.DType {
	switch name {
	case tensorTokens, tensorInputPos:
		return runtime.Int32
	default:
		return runtime.Float32
	}
}

// Signatures lists the compiled entry points.
func (e *Engine) Signatures() []string {
	return append([]string(nil), e.order...)
}

// Signature returns the tensor set for a compiled entry point.
func (e *Engine) Signature(name string) (*runtime.Signature, error) {
	s, ok := e.sigs[name]
	if !ok {
		return nil, fmt.Errorf("signature %q: %w", name, runtime.ErrNotFound)
	}
	return s.sig, nil
}

// Invoke executes one signature synchronously. Graph execution cannot be
// interrupted, so cancellation is only observed before the call.
func (e *Engine) Invoke(ctx context.Context, name string) error {
	s, ok := e.sigs[name]
	if !ok {
		return fmt.Errorf("signature %q: %w", name, runtime.ErrNotFound)
	}
	if err := ctx.Err(); err != nil {
		return &runtime.InvokeError{Signature: name, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	args := make([]any, len(s.sig.Inputs))
	for i, in := range s.sig.Inputs {
		args[i] = feedTensor(in)
	}

	var (
		results []*tensors.Tensor
		execErr error
	)
	err := exceptions.TryCatch[error](func() {
		results, execErr = s.exec.Exec(args...)
	})
	if err == nil {
		err = execErr
	}
	if err != nil {
		return &runtime.InvokeError{Signature: name, Err: err}
	}
	if len(results) != len(s.sig.Outputs) {
		return &runtime.InvokeError{
			Signature: name,
			Err:       fmt.Errorf("graph returned %d outputs, signature declares %d", len(results), len(s.sig.Outputs)),
		}
	}

	for i, out := range s.sig.Outputs {
		if err := copyOut(out, results[i]); err != nil {
			return &runtime.InvokeError{Signature: name, Err: err}
		}
	}
	return nil
}

// feedTensor converts a signature input buffer into a GoMLX tensor.
func feedTensor(t *runtime.Tensor) *tensors.Tensor {
	dims := t.Dims()
	switch t.DType() {
	case runtime.Int32:
		return tensors.FromFlatDataAndDimensions(t.RawInt32s(), dims...)
	case runtime.Int64:
		return tensors.FromFlatDataAndDimensions(t.RawInt64s(), dims...)
	default:
		return tensors.FromFlatDataAndDimensions(t.RawFloat32s(), dims...)
	}
}

// copyOut copies a graph result into the signature's output buffer.
func copyOut(dst *runtime.Tensor, src *tensors.Tensor) error {
	switch dst.DType() {
	case runtime.Float32:
		return copyFlat(dst, src, dst.RawFloat32s())
	case runtime.Int32:
		return copyFlat(dst, src, dst.RawInt32s())
	default:
		return copyFlat(dst, src, dst.RawInt64s())
	}
}

func copyFlat[T float32 | int32 | int64](dst *runtime.Tensor, src *tensors.Tensor, out []T) error {
	var sizeErr error
	if err := tensors.ConstFlatData(src, func(flat []T) {
		if len(flat) != len(out) {
			sizeErr = fmt.Errorf("output %s: graph produced %d elements, want %d", dst.Name(), len(flat), len(out))
			return
		}
		copy(out, flat)
	}); err != nil {
		return fmt.Errorf("output %s: %w", dst.Name(), err)
	}
	return sizeErr
}

// Close releases the compiled executors, the model, and the backend.
func (e *Engine) Close() error {
	for _, s := range e.sigs {
		if s.exec != nil {
			s.exec.Finalize()
		}
	}
	e.sigs = nil
	if e.model != nil {
		e.model.Close()
		e.model = nil
	}
	if e.backend != nil {
		e.backend.Finalize()
		e.backend = nil
	}
	return nil
}
