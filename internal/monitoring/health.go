package monitoring

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillml/quill/internal/logger"
	"github.com/quillml/quill/internal/metrics"
)

// HealthStatus is the payload served on /healthz.
type HealthStatus struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Uptime    string     `json:"uptime"`
	System    SystemInfo `json:"system"`
	Model     ModelInfo  `json:"model"`
	Tokens    int64      `json:"tokens_generated"`
}

type SystemInfo struct {
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	NumCPU    int    `json:"num_cpu"`
	HeapMB    int    `json:"heap_mb"`
}

type ModelInfo struct {
	Loaded     bool     `json:"loaded"`
	Path       string   `json:"path,omitempty"`
	Backend    string   `json:"backend,omitempty"`
	Signatures []string `json:"signatures,omitempty"`
}

// Server exposes /healthz and /metrics for a running driver process.
type Server struct {
	mu    sync.Mutex
	start time.Time
	model ModelInfo
}

func NewServer() *Server {
	return &Server{start: time.Now()}
}

// SetModel records the loaded model so /healthz can report it.
func (s *Server) SetModel(path, backend string, signatures []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = ModelInfo{Loaded: true, Path: path, Backend: backend, Signatures: signatures}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.mu.Lock()
	model := s.model
	s.mu.Unlock()

	status := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.start).String(),
		System: SystemInfo{
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			NumCPU:    runtime.NumCPU(),
			HeapMB:    int(mem.HeapAlloc >> 20),
		},
		Model:  model,
		Tokens: metrics.TotalTokens(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Serve starts the monitoring endpoint in a goroutine. Errors are logged,
// not fatal; a benchmark run without the port available still works.
func (s *Server) Serve(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		logger.Log.Info("monitoring endpoint listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Log.Warn("monitoring endpoint stopped", "error", err)
		}
	}()
}
