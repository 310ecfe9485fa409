package generate

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/quillml/quill/internal/config"
)

// SelectFn picks the next token from a logit distribution. history holds the
// full token sequence so far (prompt plus continuation) for policies that
// penalize repetition; greedy ignores it. Implementations carry no state
// beyond an optional seeded random source, so a policy value can be swapped
// without touching the decode loop.
type SelectFn func(logits []float32, history []int) int

// Greedy returns the deterministic argmax policy.
func Greedy() SelectFn {
	return func(logits []float32, history []int) int {
		return argMax(logits)
	}
}

// NewSampled returns a temperature/top-k/top-p policy. Temperature zero
// degenerates to greedy.
func NewSampled(cfg config.Sampling) SelectFn {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	return func(logits []float32, history []int) int {
		if !validLogits(logits) {
			return firstValidToken(logits)
		}

		if cfg.RepPenalty > 1.0 && len(history) > 0 {
			logits = penalizeRepeats(logits, history, cfg.RepPenalty)
		}

		if cfg.Temperature == 0 {
			return argMax(logits)
		}

		probs := softmaxWithTemperature(logits, cfg.Temperature)

		candidates := make([]tokenProb, 0, len(probs))
		for i, p := range probs {
			if p > 1e-10 {
				candidates = append(candidates, tokenProb{id: i, prob: p})
			}
		}
		if len(candidates) == 0 {
			return argMax(logits)
		}

		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].prob > candidates[j].prob
		})

		candidates = applyTopK(candidates, cfg.TopK)
		candidates = applyTopP(candidates, cfg.TopP)
		if len(candidates) == 0 {
			return argMax(logits)
		}

		return drawFrom(candidates, rng)
	}
}

type tokenProb struct {
	id   int
	prob float64
}

func validLogits(logits []float32) bool {
	for _, v := range logits {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}
	return true
}

func firstValidToken(logits []float32) int {
	for i, v := range logits {
		if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
			return i
		}
	}
	return 0
}

// penalizeRepeats divides positive logits (and multiplies negative ones) of
// recently seen tokens. Works on a copy; the caller's logits are not mutated.
func penalizeRepeats(logits []float32, history []int, penalty float64) []float32 {
	out := make([]float32, len(logits))
	copy(out, logits)

	start := 0
	if len(history) > 64 {
		start = len(history) - 64
	}
	seen := make(map[int]struct{})
	for _, id := range history[start:] {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if id >= 0 && id < len(out) {
			if out[id] > 0 {
				out[id] /= float32(penalty)
			} else {
				out[id] *= float32(penalty)
			}
		}
	}
	return out
}

func softmaxWithTemperature(logits []float32, temperature float64) []float64 {
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = float64(v) / temperature
	}

	maxVal := probs[0]
	for _, v := range probs {
		if v > maxVal {
			maxVal = v
		}
	}

	sum := 0.0
	for i := range probs {
		probs[i] = math.Exp(probs[i] - maxVal)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func drawFrom(candidates []tokenProb, rng *rand.Rand) int {
	sum := 0.0
	for _, c := range candidates {
		sum += c.prob
	}

	r := rng.Float64() * sum
	acc := 0.0
	for _, c := range candidates {
		acc += c.prob
		if r < acc {
			return c.id
		}
	}
	return candidates[0].id
}

// argMax returns the index of the largest logit. Ties go to the lowest
// index, keeping greedy selection reproducible.
func argMax(logits []float32) int {
	maxIdx := 0
	maxVal := float32(math.Inf(-1))
	for i, v := range logits {
		if math.IsNaN(float64(v)) {
			continue
		}
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	return maxIdx
}

func applyTopK(candidates []tokenProb, k int) []tokenProb {
	if k <= 0 || k >= len(candidates) {
		return candidates
	}
	return candidates[:k]
}

func applyTopP(candidates []tokenProb, p float64) []tokenProb {
	if p >= 1.0 || p <= 0.0 {
		return candidates
	}

	sum := 0.0
	for i, c := range candidates {
		sum += c.prob
		if sum >= p {
			return candidates[:i+1]
		}
	}
	return candidates
}
