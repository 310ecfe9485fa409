// Package trace captures per-step decode telemetry as Arrow records, for
// offline latency analysis or shipping to a Flight collector.
package trace

import (
	"fmt"
	"os"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/quillml/quill/internal/generate"
)

// Schema returns the step-record schema: one row per selection step.
func Schema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "step", Type: arrow.PrimitiveTypes.Int32},
		{Name: "position", Type: arrow.PrimitiveTypes.Int32},
		{Name: "token", Type: arrow.PrimitiveTypes.Int32},
		{Name: "logit", Type: arrow.PrimitiveTypes.Float32},
		{Name: "latency_us", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
}

// Recorder accumulates step records for one or more generation runs.
type Recorder struct {
	mu     sync.Mutex
	alloc  memory.Allocator
	schema *arrow.Schema
	b      *array.RecordBuilder
	rows   int
}

func NewRecorder() *Recorder {
	alloc := memory.NewGoAllocator()
	schema := Schema()
	return &Recorder{
		alloc:  alloc,
		schema: schema,
		b:      array.NewRecordBuilder(alloc, schema),
	}
}

// Record appends one step. Safe to use as a generate.Request OnStep hook.
func (r *Recorder) Record(rec generate.StepRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.b.Field(0).(*array.Int32Builder).Append(int32(rec.Step))
	r.b.Field(1).(*array.Int32Builder).Append(int32(rec.Position))
	r.b.Field(2).(*array.Int32Builder).Append(int32(rec.Token))
	r.b.Field(3).(*array.Float32Builder).Append(rec.Logit)
	r.b.Field(4).(*array.Int64Builder).Append(rec.Latency.Microseconds())
	r.rows++
}

// Rows reports the number of recorded steps not yet snapshotted.
func (r *Recorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Snapshot drains the recorded steps into a record. Caller releases it.
func (r *Recorder) Snapshot() arrow.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = 0
	return r.b.NewRecord()
}

// Release frees builder memory. The recorder is unusable afterwards.
func (r *Recorder) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.b.Release()
}

// WriteFile writes a snapshotted record to an Arrow IPC file.
func WriteFile(path string, rec arrow.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace file: %w", err)
	}
	defer f.Close()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()))
	if err != nil {
		return fmt.Errorf("opening trace writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return fmt.Errorf("writing trace record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing trace writer: %w", err)
	}
	return nil
}
