package generate

import (
	"math"
	"testing"

	"github.com/quillml/quill/internal/config"
)

func TestGreedyArgmax(t *testing.T) {
	sel := Greedy()

	logits := []float32{0.1, 3.5, 0.2, 3.4}
	if got := sel(logits, nil); got != 1 {
		t.Errorf("greedy = %d, want 1", got)
	}

	// Ties break to the lowest index.
	logits = []float32{1, 5, 5, 5}
	if got := sel(logits, nil); got != 1 {
		t.Errorf("tie-break = %d, want first maximum", got)
	}

	// History must not influence greedy selection.
	if got := sel([]float32{0, 1, 9}, []int{2, 2, 2}); got != 2 {
		t.Errorf("greedy with history = %d, want 2", got)
	}
}

func TestGreedySkipsNaN(t *testing.T) {
	nan := float32(math.NaN())
	logits := []float32{nan, 2, nan, 7, 1}
	if got := Greedy()(logits, nil); got != 3 {
		t.Errorf("argmax over NaN logits = %d, want 3", got)
	}
}

func TestSampledZeroTemperatureIsGreedy(t *testing.T) {
	sel := NewSampled(config.Sampling{Temperature: 0, Seed: 1})
	logits := []float32{0, 0, 8, 0}
	for i := 0; i < 10; i++ {
		if got := sel(logits, nil); got != 2 {
			t.Fatalf("zero-temperature sample = %d, want deterministic 2", got)
		}
	}
}

func TestSampledSeedReproducible(t *testing.T) {
	logits := []float32{1, 1.2, 0.8, 1.1, 0.9}

	run := func() []int {
		sel := NewSampled(config.Sampling{Temperature: 1.0, TopK: 5, TopP: 1.0, Seed: 42})
		out := make([]int, 20)
		for i := range out {
			out[i] = sel(logits, nil)
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed diverged at draw %d: %v vs %v", i, a, b)
		}
	}
}

func TestSampledTopKRestricts(t *testing.T) {
	// With k=1 only the argmax can ever be drawn.
	sel := NewSampled(config.Sampling{Temperature: 2.0, TopK: 1, TopP: 1.0, Seed: 7})
	logits := []float32{0.5, 4, 1, 2}
	for i := 0; i < 50; i++ {
		if got := sel(logits, nil); got != 1 {
			t.Fatalf("top-k=1 drew %d, want 1", got)
		}
	}
}

func TestSampledTopPRestricts(t *testing.T) {
	// One token holds nearly all the mass; a tight nucleus keeps only it.
	sel := NewSampled(config.Sampling{Temperature: 1.0, TopP: 0.5, Seed: 11})
	logits := []float32{10, 0, 0, 0}
	for i := 0; i < 50; i++ {
		if got := sel(logits, nil); got != 0 {
			t.Fatalf("top-p drew %d, want 0", got)
		}
	}
}

func TestRepetitionPenaltyDemotesHistory(t *testing.T) {
	// Tokens 1 and 2 are nearly tied; penalizing 1 (in history) must flip
	// greedy selection to 2.
	sel := NewSampled(config.Sampling{Temperature: 0, RepPenalty: 1.5, Seed: 3})
	logits := []float32{0, 5.0, 4.9, 0}
	if got := sel(logits, []int{1}); got != 2 {
		t.Errorf("penalized selection = %d, want 2", got)
	}
	// Without history the raw argmax wins.
	if got := sel(logits, nil); got != 1 {
		t.Errorf("unpenalized selection = %d, want 1", got)
	}
}

func TestPenalizeRepeatsDoesNotMutate(t *testing.T) {
	logits := []float32{1, 2, 3}
	_ = penalizeRepeats(logits, []int{2}, 2.0)
	if logits[2] != 3 {
		t.Errorf("caller logits mutated: %v", logits)
	}
}

func TestInvalidLogitsFallback(t *testing.T) {
	inf := float32(math.Inf(1))
	sel := NewSampled(config.Sampling{Temperature: 0.7, Seed: 5})
	logits := []float32{inf, 1, 2}
	got := sel(logits, nil)
	if got != 1 {
		t.Errorf("fallback over invalid logits = %d, want first finite index 1", got)
	}
}

func TestApplyTopP(t *testing.T) {
	candidates := []tokenProb{{0, 0.6}, {1, 0.3}, {2, 0.1}}
	if got := applyTopP(candidates, 0.5); len(got) != 1 {
		t.Errorf("top-p 0.5 kept %d, want 1", len(got))
	}
	if got := applyTopP(candidates, 0.9); len(got) != 2 {
		t.Errorf("top-p 0.9 kept %d, want 2", len(got))
	}
	if got := applyTopP(candidates, 1.0); len(got) != 3 {
		t.Errorf("top-p 1.0 kept %d, want all", len(got))
	}
}
