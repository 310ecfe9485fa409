package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var totalTokens atomic.Int64

var (
	TokensGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quill_tokens_generated_total",
		Help: "Total number of tokens generated across all requests",
	})

	PrefillDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quill_prefill_duration_seconds",
		Help:    "Latency of the batched prompt prefill pass",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	})

	DecodeStepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quill_decode_step_duration_seconds",
		Help:    "Latency of single-token decode steps",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
	})

	PromptLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quill_prompt_length_tokens",
		Help:    "Distribution of prompt lengths processed",
		Buckets: []float64{8, 16, 32, 64, 128, 256, 512, 1024, 2048},
	})

	InvocationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_invocation_errors_total",
		Help: "Signature invocations that failed, by phase",
	}, []string{"phase"})

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_requests_total",
		Help: "Generation requests, by outcome (eos, length, error, cancelled)",
	}, []string{"outcome"})

	KVCacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quill_kv_cache_bytes",
		Help: "Bytes held by the threaded key/value cache buffers",
	})

	ModelLoadDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quill_model_load_duration_seconds",
		Help: "Wall time of the last model load",
	})
)

// RecordPrefill observes one prefill pass over promptLen tokens.
func RecordPrefill(promptLen int, d time.Duration) {
	PromptLength.Observe(float64(promptLen))
	PrefillDuration.Observe(d.Seconds())
}

// RecordDecodeStep observes one single-token decode step.
func RecordDecodeStep(d time.Duration) {
	DecodeStepDuration.Observe(d.Seconds())
	TokensGeneratedTotal.Inc()
	totalTokens.Add(1)
}

// RecordInvocationError counts a failed signature invocation for a phase
// ("prefill" or "decode").
func RecordInvocationError(phase string) {
	InvocationErrors.WithLabelValues(phase).Inc()
}

// RecordRequest counts a finished generation request by outcome.
func RecordRequest(outcome string) {
	RequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordKVCacheBytes publishes the current cache footprint.
func RecordKVCacheBytes(bytes int64) {
	KVCacheBytes.Set(float64(bytes))
}

// RecordModelLoad publishes the wall time of a model load.
func RecordModelLoad(d time.Duration) {
	ModelLoadDuration.Set(d.Seconds())
}

// TotalTokens returns the process-lifetime generated token count.
func TotalTokens() int64 {
	return totalTokens.Load()
}
