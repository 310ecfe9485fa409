package config

import (
	"fmt"
	"strings"
)

// Backend selects the execution backend for the graph engine.
type Backend int

const (
	// BackendAuto picks XLA when a PJRT plugin is available, otherwise the
	// pure-Go backend.
	BackendAuto Backend = iota
	BackendGo
	BackendXLA
)

func (b Backend) String() string {
	switch b {
	case BackendGo:
		return "go"
	case BackendXLA:
		return "xla"
	default:
		return "auto"
	}
}

// ParseBackend maps a flag value to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return BackendAuto, nil
	case "go", "simplego", "cpu":
		return BackendGo, nil
	case "xla":
		return BackendXLA, nil
	default:
		return BackendAuto, fmt.Errorf("unknown backend %q (want auto, go or xla)", s)
	}
}

// Sampling holds the token selection parameters. Temperature 0 means greedy
// argmax; TopK/TopP only apply when sampling.
type Sampling struct {
	Temperature float64
	TopK        int
	TopP        float64
	RepPenalty  float64
	Seed        int64
}

// Config carries everything one generation run needs.
type Config struct {
	ModelPath     string
	TokenizerPath string
	Prompt        string

	// MaxTokens caps the generated continuation, not counting the prompt.
	MaxTokens int

	Backend Backend
	Threads int

	Sampling Sampling

	// TracePath, when set, writes per-step Arrow records there.
	TracePath string
	// TraceFlightAddr, when set, additionally ships the records to an
	// Arrow Flight endpoint.
	TraceFlightAddr string

	MetricsAddr string
}

func Default() Config {
	return Config{
		MaxTokens: 128,
		Backend:   BackendAuto,
		Threads:   0, // engine default
		Sampling: Sampling{
			Temperature: 0, // greedy
			TopK:        40,
			TopP:        0.95,
			RepPenalty:  1.0,
		},
	}
}

func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("model path is required")
	}
	if c.TokenizerPath == "" {
		return fmt.Errorf("tokenizer path is required")
	}
	if c.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("invalid max_tokens: %d (must be positive)", c.MaxTokens)
	}
	if c.Threads < 0 {
		return fmt.Errorf("invalid threads: %d (must be non-negative)", c.Threads)
	}
	if c.Sampling.Temperature < 0 {
		return fmt.Errorf("invalid temperature: %f (must be non-negative)", c.Sampling.Temperature)
	}
	if c.Sampling.TopP < 0 || c.Sampling.TopP > 1 {
		return fmt.Errorf("invalid top_p: %f (must be in [0,1])", c.Sampling.TopP)
	}
	if c.Sampling.TopK < 0 {
		return fmt.Errorf("invalid top_k: %d (must be non-negative)", c.Sampling.TopK)
	}
	if c.Sampling.RepPenalty < 0 {
		return fmt.Errorf("invalid repetition penalty: %f (must be non-negative)", c.Sampling.RepPenalty)
	}
	return nil
}
