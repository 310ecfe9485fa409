package generate

import (
	"context"
	"fmt"
	"time"

	"github.com/quillml/quill/internal/logger"
	"github.com/quillml/quill/internal/metrics"
	"github.com/quillml/quill/internal/runtime"
)

// Signature and tensor names the driver expects a generation-ready model to
// export. Cache tensors carry the CachePrefix and appear under the same name
// in a signature's inputs and outputs.
const (
	SigPrefill = "prefill"
	SigDecode  = "decode"

	TensorTokens   = "tokens"
	TensorInputPos = "input_pos"
	TensorLogits   = "logits"

	CachePrefix = "kv_"
)

// State of the decode loop for one generation request.
type State int

const (
	StateIdle State = iota
	StatePrefilling
	StateDecoding
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrefilling:
		return "prefilling"
	case StateDecoding:
		return "decoding"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FinishReason records why a request terminated.
type FinishReason int

const (
	FinishEOS FinishReason = iota
	FinishLength
)

func (r FinishReason) String() string {
	if r == FinishEOS {
		return "eos"
	}
	return "length"
}

// StepRecord describes one decode step for telemetry consumers.
type StepRecord struct {
	Step     int // 1-based decode loop iteration; 0 is the prefill selection
	Position int // absolute position the step's input token was written at
	Token    int // the token selected by this step
	Logit    float32
	Latency  time.Duration
}

// Request is one generation run over an already-encoded prompt.
type Request struct {
	Prompt    []int
	MaxTokens int
	// EOS terminates generation when selected. Negative disables the check.
	EOS int
	// Select picks the next token; nil means greedy argmax.
	Select SelectFn
	// OnToken, when set, is called for every generated token in order.
	OnToken func(token int)
	// OnStep, when set, receives per-step telemetry.
	OnStep func(rec StepRecord)
}

// Result of a terminated request.
type Result struct {
	// Tokens is prompt plus continuation.
	Tokens []int
	// Generated is the continuation only.
	Generated []int
	// Steps counts decode-loop iterations; the first generated token comes
	// out of the prefill pass and is not counted.
	Steps  int
	Reason FinishReason

	PrefillLatency time.Duration
	DecodeLatency  time.Duration
}

// MeanStepLatency is the average single-token decode latency.
func (r *Result) MeanStepLatency() time.Duration {
	if r.Steps == 0 {
		return 0
	}
	return r.DecodeLatency / time.Duration(r.Steps)
}

// TokensPerSecond over the decode phase only.
func (r *Result) TokensPerSecond() float64 {
	if r.DecodeLatency <= 0 {
		return 0
	}
	return float64(r.Steps) / r.DecodeLatency.Seconds()
}

// cachePair is one recurrent buffer threaded between invocations: outputs of
// one step are copied into the inputs of the next.
type cachePair struct {
	name       string
	prefillOut *runtime.Tensor
	decodeIn   *runtime.Tensor
	decodeOut  *runtime.Tensor
}

// Controller drives prefill and decode signatures of one Engine. It owns the
// cache threading and position bookkeeping; it is not safe for concurrent
// Generate calls against the same instance.
type Controller struct {
	eng     runtime.Engine
	prefill *runtime.Signature
	decode  *runtime.Signature

	prefillTokens *runtime.Tensor
	prefillPos    *runtime.Tensor
	prefillLogits *runtime.Tensor
	decodeTokens  *runtime.Tensor
	decodePos     *runtime.Tensor
	decodeLogits  *runtime.Tensor

	cache      []cachePair
	cacheValid int // tokens currently reflected in the cache content

	maxPrompt int
	state     State
	log       *logger.Logger
}

// New resolves the prefill and decode signatures and their tensor contracts.
// Fails when the model does not export the expected entry points.
func New(eng runtime.Engine) (*Controller, error) {
	c := &Controller{eng: eng, state: StateIdle, log: logger.Log.With("generate")}

	var err error
	if c.prefill, err = eng.Signature(SigPrefill); err != nil {
		return nil, fmt.Errorf("resolving prefill signature: %w", err)
	}
	if c.decode, err = eng.Signature(SigDecode); err != nil {
		return nil, fmt.Errorf("resolving decode signature: %w", err)
	}

	if c.prefillTokens, err = c.prefill.Input(TensorTokens); err != nil {
		return nil, err
	}
	if c.prefillPos, err = c.prefill.Input(TensorInputPos); err != nil {
		return nil, err
	}
	if c.prefillLogits, err = c.prefill.Output(TensorLogits); err != nil {
		return nil, err
	}
	if c.decodeTokens, err = c.decode.Input(TensorTokens); err != nil {
		return nil, err
	}
	if c.decodePos, err = c.decode.Input(TensorInputPos); err != nil {
		return nil, err
	}
	if c.decodeLogits, err = c.decode.Output(TensorLogits); err != nil {
		return nil, err
	}

	c.maxPrompt = c.prefillTokens.NumElements()
	if c.maxPrompt == 0 {
		return nil, fmt.Errorf("prefill signature has empty token input")
	}
	if c.decodeTokens.NumElements() != 1 {
		return nil, fmt.Errorf("decode signature token input must hold one token, has %d", c.decodeTokens.NumElements())
	}

	if err := c.resolveCache(); err != nil {
		return nil, err
	}
	return c, nil
}

// resolveCache pairs up the kv_* tensors across the two signatures. Every
// decode cache input must have a same-named output in both prefill and
// decode, and the element counts must agree, or threading is impossible.
func (c *Controller) resolveCache() error {
	var bytes int64
	for _, in := range c.decode.Inputs {
		name := in.Name()
		if len(name) < len(CachePrefix) || name[:len(CachePrefix)] != CachePrefix {
			continue
		}
		pOut, err := c.prefill.Output(name)
		if err != nil {
			return fmt.Errorf("cache tensor %s missing from prefill outputs: %w", name, err)
		}
		dOut, err := c.decode.Output(name)
		if err != nil {
			return fmt.Errorf("cache tensor %s missing from decode outputs: %w", name, err)
		}
		if pOut.NumElements() != in.NumElements() || dOut.NumElements() != in.NumElements() {
			return &runtime.ShapeError{Tensor: name, Want: in.NumElements(), Got: pOut.NumElements()}
		}
		c.cache = append(c.cache, cachePair{name: name, prefillOut: pOut, decodeIn: in, decodeOut: dOut})
		bytes += int64(in.NumElements()) * 4
	}
	if len(c.cache) == 0 {
		return fmt.Errorf("decode signature declares no %s* cache inputs", CachePrefix)
	}
	metrics.RecordKVCacheBytes(bytes)
	return nil
}

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// MaxPromptTokens is the static capacity of the prefill signature.
func (c *Controller) MaxPromptTokens() int { return c.maxPrompt }

// Generate runs one request to termination. On any invocation or tensor
// error the partial continuation is discarded and a PhaseError is returned;
// the engine and controller stay usable for a fresh request. ctx is checked
// between steps only; a running invocation is never interrupted.
func (c *Controller) Generate(ctx context.Context, req Request) (*Result, error) {
	if c.state != StateIdle && c.state != StateTerminated {
		return nil, fmt.Errorf("controller busy: state %v", c.state)
	}
	if len(req.Prompt) == 0 {
		return nil, fmt.Errorf("empty prompt")
	}
	if len(req.Prompt) > c.maxPrompt {
		return nil, fmt.Errorf("prompt length %d exceeds prefill capacity %d", len(req.Prompt), c.maxPrompt)
	}
	if req.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", req.MaxTokens)
	}
	sel := req.Select
	if sel == nil {
		sel = Greedy()
	}

	res, err := c.run(ctx, req, sel)
	if err != nil {
		c.state = StateIdle
		return nil, err
	}
	c.state = StateTerminated
	return res, nil
}

func (c *Controller) run(ctx context.Context, req Request, sel SelectFn) (*Result, error) {
	promptLen := len(req.Prompt)
	res := &Result{Tokens: append([]int(nil), req.Prompt...)}

	// Prefill: the whole prompt in one pass, positions [0, promptLen).
	c.state = StatePrefilling
	c.cacheValid = 0

	tokens := make([]int32, c.maxPrompt)
	pos := make([]int32, c.prefillPos.NumElements())
	for i, id := range req.Prompt {
		tokens[i] = int32(id)
	}
	for i := range pos {
		pos[i] = int32(i)
	}
	if err := c.prefillTokens.SetInt32s(tokens); err != nil {
		return nil, &PhaseError{Phase: "prefill", Err: err}
	}
	if err := c.prefillPos.SetInt32s(pos); err != nil {
		return nil, &PhaseError{Phase: "prefill", Err: err}
	}

	t0 := time.Now()
	if err := c.eng.Invoke(ctx, SigPrefill); err != nil {
		metrics.RecordInvocationError("prefill")
		metrics.RecordRequest("error")
		return nil, &PhaseError{Phase: "prefill", Err: err}
	}
	res.PrefillLatency = time.Since(t0)
	metrics.RecordPrefill(promptLen, res.PrefillLatency)

	// The prompt is now reflected in the cache; thread it to decode.
	c.cacheValid = promptLen
	for _, p := range c.cache {
		if err := runtime.Copy(p.decodeIn, p.prefillOut); err != nil {
			return nil, &PhaseError{Phase: "prefill", Err: err}
		}
	}

	flat, err := c.prefillLogits.Float32s()
	if err != nil {
		return nil, &PhaseError{Phase: "prefill", Err: err}
	}
	logits, err := c.lastPromptLogits(flat, promptLen)
	if err != nil {
		return nil, &PhaseError{Phase: "prefill", Err: err}
	}
	next := sel(logits, res.Tokens)
	c.emit(req, res, next)
	c.emitStep(req, StepRecord{Step: 0, Position: promptLen - 1, Token: next, Logit: logits[next], Latency: res.PrefillLatency})
	c.log.Debug("prefill complete", "prompt_tokens", promptLen, "latency", res.PrefillLatency, "first_token", next)

	// Position of the next token to be produced.
	position := promptLen

	if req.EOS >= 0 && next == req.EOS {
		res.Reason = FinishEOS
		metrics.RecordRequest("eos")
		return res, nil
	}
	if len(res.Generated) >= req.MaxTokens {
		res.Reason = FinishLength
		metrics.RecordRequest("length")
		return res, nil
	}

	// Decode loop: one invocation per generated token, cache threaded
	// between iterations.
	c.state = StateDecoding
	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			metrics.RecordRequest("cancelled")
			return nil, &PhaseError{Phase: "decode", Step: step, Err: err}
		}
		if c.cacheValid != position {
			return nil, &PhaseError{Phase: "decode", Step: step,
				Err: fmt.Errorf("cache holds %d tokens, position counter is %d", c.cacheValid, position)}
		}

		if err := c.decodeTokens.SetInt32s([]int32{int32(next)}); err != nil {
			return nil, &PhaseError{Phase: "decode", Step: step, Err: err}
		}
		if err := c.decodePos.SetInt32s([]int32{int32(position)}); err != nil {
			return nil, &PhaseError{Phase: "decode", Step: step, Err: err}
		}

		t := time.Now()
		if err := c.eng.Invoke(ctx, SigDecode); err != nil {
			metrics.RecordInvocationError("decode")
			metrics.RecordRequest("error")
			return nil, &PhaseError{Phase: "decode", Step: step, Err: err}
		}
		stepLatency := time.Since(t)
		res.DecodeLatency += stepLatency
		res.Steps = step
		metrics.RecordDecodeStep(stepLatency)

		// One more token entered the cache; thread it forward.
		c.cacheValid++
		for _, p := range c.cache {
			if err := runtime.Copy(p.decodeIn, p.decodeOut); err != nil {
				return nil, &PhaseError{Phase: "decode", Step: step, Err: err}
			}
		}

		logits, err := c.decodeLogits.Float32s()
		if err != nil {
			return nil, &PhaseError{Phase: "decode", Step: step, Err: err}
		}
		next = sel(logits, res.Tokens)
		c.emit(req, res, next)
		c.emitStep(req, StepRecord{Step: step, Position: position, Token: next, Logit: logits[next], Latency: stepLatency})
		position++

		// EOS is checked before the length cap; it wins a tie.
		if req.EOS >= 0 && next == req.EOS {
			res.Reason = FinishEOS
			metrics.RecordRequest("eos")
			return res, nil
		}
		if len(res.Generated) >= req.MaxTokens {
			res.Reason = FinishLength
			metrics.RecordRequest("length")
			return res, nil
		}
	}
}

// lastPromptLogits returns the vocab-length logits row for the final prompt
// token. Prefill signatures either export the last row directly or one row
// per prompt window position; the decode logits fix the vocab size.
func (c *Controller) lastPromptLogits(flat []float32, promptLen int) ([]float32, error) {
	vocab := c.decodeLogits.NumElements()
	switch len(flat) {
	case vocab:
		return flat, nil
	case c.maxPrompt * vocab:
		off := (promptLen - 1) * vocab
		return flat[off : off+vocab], nil
	default:
		return nil, &runtime.ShapeError{Tensor: TensorLogits, Want: vocab, Got: len(flat)}
	}
}

func (c *Controller) emit(req Request, res *Result, token int) {
	res.Tokens = append(res.Tokens, token)
	res.Generated = append(res.Generated, token)
	if req.OnToken != nil {
		req.OnToken(token)
	}
}

func (c *Controller) emitStep(req Request, rec StepRecord) {
	if req.OnStep != nil {
		req.OnStep(rec)
	}
}
