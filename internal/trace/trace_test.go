package trace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"github.com/quillml/quill/internal/generate"
)

func TestRecorderAccumulates(t *testing.T) {
	r := NewRecorder()
	defer r.Release()

	for i := 0; i < 3; i++ {
		r.Record(generate.StepRecord{
			Step:     i,
			Position: 4 + i,
			Token:    100 + i,
			Logit:    float32(i) * 0.5,
			Latency:  time.Duration(i+1) * time.Millisecond,
		})
	}

	if got := r.Rows(); got != 3 {
		t.Fatalf("Rows() = %d, want 3", got)
	}

	rec := r.Snapshot()
	defer rec.Release()

	if rec.NumRows() != 3 {
		t.Fatalf("snapshot rows = %d, want 3", rec.NumRows())
	}
	if got := r.Rows(); got != 0 {
		t.Fatalf("Rows() after snapshot = %d, want 0", got)
	}

	tokens := rec.Column(2).(*array.Int32)
	for i := 0; i < 3; i++ {
		if tokens.Value(i) != int32(100+i) {
			t.Errorf("token[%d] = %d, want %d", i, tokens.Value(i), 100+i)
		}
	}
	latencies := rec.Column(4).(*array.Int64)
	if latencies.Value(2) != 3000 {
		t.Errorf("latency_us[2] = %d, want 3000", latencies.Value(2))
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	r := NewRecorder()
	defer r.Release()

	r.Record(generate.StepRecord{Step: 0, Position: 7, Token: 42, Logit: 1.5, Latency: 250 * time.Microsecond})
	r.Record(generate.StepRecord{Step: 1, Position: 8, Token: 2, Logit: 9.0, Latency: 300 * time.Microsecond})

	rec := r.Snapshot()
	defer rec.Release()

	path := filepath.Join(t.TempDir(), "steps.arrow")
	if err := WriteFile(path, rec); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open trace file: %v", err)
	}
	defer f.Close()

	rdr, err := ipc.NewFileReader(f)
	if err != nil {
		t.Fatalf("NewFileReader: %v", err)
	}
	defer rdr.Close()

	got, err := rdr.Read()
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	if got.NumRows() != 2 {
		t.Fatalf("rows = %d, want 2", got.NumRows())
	}
	if !got.Schema().Equal(Schema()) {
		t.Fatalf("schema mismatch: %v", got.Schema())
	}
	positions := got.Column(1).(*array.Int32)
	if positions.Value(1) != 8 {
		t.Errorf("position[1] = %d, want 8", positions.Value(1))
	}
}

func TestWriteFileBadPath(t *testing.T) {
	r := NewRecorder()
	defer r.Release()
	r.Record(generate.StepRecord{Token: 1})
	rec := r.Snapshot()
	defer rec.Release()

	if err := WriteFile(filepath.Join(t.TempDir(), "missing", "steps.arrow"), rec); err == nil {
		t.Fatal("expected error for unwritable path")
	}
}
