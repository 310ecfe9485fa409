package tokenizer

import (
	"testing"
)

func TestResolveSpecial(t *testing.T) {
	tests := []struct {
		name    string
		vocab   map[string]int
		wantBOS int
		wantEOS int
	}{
		{
			name:    "llama style",
			vocab:   map[string]int{"<s>": 1, "</s>": 2},
			wantBOS: 1,
			wantEOS: 2,
		},
		{
			name:    "gemma style",
			vocab:   map[string]int{"<bos>": 2, "<eos>": 1},
			wantBOS: 2,
			wantEOS: 1,
		},
		{
			name:    "gpt style, no bos",
			vocab:   map[string]int{"<|endoftext|>": 50256},
			wantBOS: -1,
			wantEOS: 50256,
		},
		{
			name:    "no specials",
			vocab:   map[string]int{"hello": 5},
			wantBOS: -1,
			wantEOS: -1,
		},
		{
			name:    "priority order prefers angle form",
			vocab:   map[string]int{"<eos>": 1, "<|endoftext|>": 9},
			wantBOS: -1,
			wantEOS: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := func(s string) (int, bool) {
				id, ok := tt.vocab[s]
				return id, ok
			}
			bos, eos := resolveSpecial(lookup)
			if bos != tt.wantBOS {
				t.Errorf("bos = %d, want %d", bos, tt.wantBOS)
			}
			if eos != tt.wantEOS {
				t.Errorf("eos = %d, want %d", eos, tt.wantEOS)
			}
		})
	}
}

func TestTrimAtEOS(t *testing.T) {
	tests := []struct {
		name string
		ids  []int
		eos  int
		want int // expected length after trim
	}{
		{"eos mid sequence", []int{5, 6, 2, 7}, 2, 2},
		{"eos first", []int{2, 5, 6}, 2, 0},
		{"eos last", []int{5, 6, 2}, 2, 2},
		{"no eos present", []int{5, 6, 7}, 2, 3},
		{"no eos defined", []int{5, 6, 7}, -1, 3},
		{"empty", []int{}, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trimAtEOS(tt.ids, tt.eos)
			if len(got) != tt.want {
				t.Errorf("trimAtEOS(%v, %d) = %v, want len %d", tt.ids, tt.eos, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.ids[i] {
					t.Errorf("trim reordered ids: %v", got)
				}
			}
		})
	}
}

func TestNewMissingFile(t *testing.T) {
	if _, err := New("does/not/exist/tokenizer.json"); err == nil {
		t.Fatal("expected error for missing tokenizer file")
	}
}
