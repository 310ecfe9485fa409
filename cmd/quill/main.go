// quill generates text from an ONNX decoder export: it tokenizes a prompt,
// runs one prefill pass plus a decode loop with externally threaded kv
// cache, and prints the continuation with latency figures.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"
	"time"

	"github.com/quillml/quill/internal/config"
	"github.com/quillml/quill/internal/generate"
	"github.com/quillml/quill/internal/logger"
	"github.com/quillml/quill/internal/monitoring"
	"github.com/quillml/quill/internal/runtime/gomlxrt"
	"github.com/quillml/quill/internal/tokenizer"
	"github.com/quillml/quill/internal/trace"
)

var (
	modelPath     = flag.String("model", "", "Path to ONNX decoder model")
	tokenizerPath = flag.String("tokenizer", "", "Path to tokenizer.json")
	prompt        = flag.String("prompt", "", "Prompt to generate from")
	numTokens     = flag.Int("n", 128, "Maximum number of tokens to generate")
	backendName   = flag.String("backend", "auto", "Execution backend: auto, go or xla")
	threads       = flag.Int("threads", 0, "CPU threads (0 = all)")
	prefillLen    = flag.Int("prefill-len", gomlxrt.DefaultPrefillLen, "Static prompt window of the prefill signature")

	temperature = flag.Float64("temperature", 0, "Sampling temperature (0 = greedy)")
	topK        = flag.Int("top-k", 40, "Top-k sampling cutoff (0 = disabled)")
	topP        = flag.Float64("top-p", 0.95, "Top-p nucleus sampling cutoff")
	repPenalty  = flag.Float64("rep-penalty", 1.0, "Repetition penalty (1 = disabled)")
	seed        = flag.Int64("seed", 0, "Sampling seed (0 = time-based)")

	metricsAddr = flag.String("metrics", "", "Address to serve Prometheus metrics and health, e.g. :9090")
	tracePath   = flag.String("trace", "", "Write per-step Arrow IPC trace to this file")
	traceFlight = flag.String("trace-flight", "", "Ship per-step trace to an Arrow Flight endpoint, e.g. localhost:3000")

	stream    = flag.Bool("stream", false, "Print tokens as they are produced")
	benchRuns = flag.Int("bench", 0, "Benchmark mode: repeat the request this many times")

	logLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat = flag.String("log-format", "console", "Log format: console or json")
)

func main() {
	flag.Parse()
	logger.Setup(*logLevel, *logFormat)

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	if cfg.Threads > 0 {
		goruntime.GOMAXPROCS(cfg.Threads)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		var pe *generate.PhaseError
		if errors.As(err, &pe) {
			logger.Log.Error("generation failed", "phase", pe.Phase, "step", pe.Step, "error", pe.Err)
		} else {
			logger.Log.Error("run failed", "error", err)
		}
		os.Exit(1)
	}
}

func buildConfig() (config.Config, error) {
	cfg := config.Default()
	cfg.ModelPath = *modelPath
	cfg.TokenizerPath = *tokenizerPath
	cfg.Prompt = *prompt
	cfg.MaxTokens = *numTokens
	cfg.Threads = *threads
	cfg.MetricsAddr = *metricsAddr
	cfg.TracePath = *tracePath
	cfg.TraceFlightAddr = *traceFlight
	cfg.Sampling = config.Sampling{
		Temperature: *temperature,
		TopK:        *topK,
		TopP:        *topP,
		RepPenalty:  *repPenalty,
		Seed:        *seed,
	}

	backend, err := config.ParseBackend(*backendName)
	if err != nil {
		return cfg, err
	}
	cfg.Backend = backend
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config) error {
	tok, err := tokenizer.New(cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("loading tokenizer: %w", err)
	}

	eng, err := gomlxrt.Open(cfg.ModelPath, gomlxrt.Options{
		Backend:    cfg.Backend,
		PrefillLen: *prefillLen,
	})
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	defer eng.Close()

	if cfg.MetricsAddr != "" {
		mon := monitoring.NewServer()
		mon.SetModel(cfg.ModelPath, cfg.Backend.String(), eng.Signatures())
		mon.Serve(cfg.MetricsAddr)
	}

	ctrl, err := generate.New(eng)
	if err != nil {
		return fmt.Errorf("resolving signatures: %w", err)
	}

	ids, err := tok.Encode(cfg.Prompt)
	if err != nil {
		return fmt.Errorf("encoding prompt: %w", err)
	}
	logger.Log.Info("prompt encoded", "tokens", len(ids), "capacity", ctrl.MaxPromptTokens())

	req := generate.Request{
		Prompt:    ids,
		MaxTokens: cfg.MaxTokens,
		EOS:       tok.EOS(),
	}
	if cfg.Sampling.Temperature > 0 {
		req.Select = generate.NewSampled(cfg.Sampling)
	}

	var rec *trace.Recorder
	if cfg.TracePath != "" || cfg.TraceFlightAddr != "" {
		rec = trace.NewRecorder()
		defer rec.Release()
		req.OnStep = rec.Record
	}
	if *stream {
		req.OnToken = func(id int) { fmt.Print(tok.Decode([]int{id})) }
	}

	if *benchRuns > 0 {
		return runBench(ctx, ctrl, req, *benchRuns)
	}

	res, err := ctrl.Generate(ctx, req)
	if err != nil {
		return err
	}

	if *stream {
		fmt.Println()
	} else {
		fmt.Println(tok.Decode(res.Generated))
	}
	report(res)

	if rec != nil {
		return exportTrace(ctx, cfg, rec)
	}
	return nil
}

func report(res *generate.Result) {
	logger.Log.Info("generation complete",
		"generated", len(res.Generated),
		"decode_steps", res.Steps,
		"reason", res.Reason.String(),
		"prefill", res.PrefillLatency,
		"decode_total", res.DecodeLatency,
		"decode_mean", res.MeanStepLatency(),
		"tokens_per_sec", fmt.Sprintf("%.2f", res.TokensPerSecond()))
}

// runBench repeats one request and prints aggregate latency figures, in the
// shape of the old standalone benchmark binary.
func runBench(ctx context.Context, ctrl *generate.Controller, req generate.Request, runs int) error {
	var (
		minTPS, maxTPS, sumTPS float64
		sumPrefill             time.Duration
	)
	for i := 0; i < runs; i++ {
		res, err := ctrl.Generate(ctx, req)
		if err != nil {
			return fmt.Errorf("bench run %d: %w", i+1, err)
		}
		tps := res.TokensPerSecond()
		if i == 0 || tps < minTPS {
			minTPS = tps
		}
		if tps > maxTPS {
			maxTPS = tps
		}
		sumTPS += tps
		sumPrefill += res.PrefillLatency
	}
	fmt.Printf("Runs: %d\n", runs)
	fmt.Printf("Prefill mean: %v\n", sumPrefill/time.Duration(runs))
	fmt.Printf("Decode t/s min/mean/max: %.2f / %.2f / %.2f\n", minTPS, sumTPS/float64(runs), maxTPS)
	return nil
}

func exportTrace(ctx context.Context, cfg config.Config, rec *trace.Recorder) error {
	snapshot := rec.Snapshot()
	defer snapshot.Release()

	if cfg.TracePath != "" {
		if err := trace.WriteFile(cfg.TracePath, snapshot); err != nil {
			return err
		}
		logger.Log.Info("trace written", "path", cfg.TracePath, "rows", snapshot.NumRows())
	}
	if cfg.TraceFlightAddr != "" {
		if err := trace.ExportFlight(ctx, cfg.TraceFlightAddr, snapshot); err != nil {
			return err
		}
	}
	return nil
}
