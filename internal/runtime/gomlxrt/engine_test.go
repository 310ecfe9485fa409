package gomlxrt

import (
	"testing"

	"github.com/quillml/quill/internal/runtime"
)

func TestResolveDims(t *testing.T) {
	tests := []struct {
		name    string
		tensor  string
		dims    []int
		seqLen  int
		want    []int
		wantErr bool
	}{
		{"static passthrough", "kv_0_k", []int{1, 4, 64, 32}, 16, []int{1, 4, 64, 32}, false},
		{"dynamic seq", "tokens", []int{1, -1}, 16, []int{1, 16}, false},
		{"dynamic positions", "input_pos", []int{-1}, 8, []int{8}, false},
		{"dynamic logits seq", "logits", []int{1, 0, 256}, 4, []int{1, 4, 256}, false},
		{"dynamic cache dim", "kv_3_v", []int{1, 4, -1, 32}, 16, nil, true},
		{"scalar", "tokens", nil, 16, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDims(tt.tensor, tt.dims, tt.seqLen)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveDims: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("dims = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("dims = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestInputDType(t *testing.T) {
	if got := inputDType("tokens"); got != runtime.Int32 {
		t.Errorf("tokens dtype = %v, want int32", got)
	}
	if got := inputDType("input_pos"); got != runtime.Int32 {
		t.Errorf("input_pos dtype = %v, want int32", got)
	}
	if got := inputDType("kv_0_k"); got != runtime.Float32 {
		t.Errorf("kv dtype = %v, want float32", got)
	}
}
