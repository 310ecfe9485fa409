package metrics

import (
	"testing"
	"time"
)

func TestRecordFunctionsExist(t *testing.T) {
	// Verify the exported helpers exist and don't panic.
	RecordPrefill(12, 80*time.Millisecond)
	RecordDecodeStep(5 * time.Millisecond)
	RecordInvocationError("prefill")
	RecordInvocationError("decode")
	RecordRequest("eos")
	RecordKVCacheBytes(4 << 20)
	RecordModelLoad(2 * time.Second)
}

func TestTotalTokensAccumulates(t *testing.T) {
	before := TotalTokens()
	RecordDecodeStep(time.Millisecond)
	RecordDecodeStep(time.Millisecond)
	RecordDecodeStep(time.Millisecond)
	if got := TotalTokens() - before; got != 3 {
		t.Errorf("expected 3 tokens recorded, got %d", got)
	}
}

func TestRecordRequestOutcomes(t *testing.T) {
	for _, outcome := range []string{"eos", "length", "error", "cancelled"} {
		RecordRequest(outcome) // label values must not panic
	}
}
