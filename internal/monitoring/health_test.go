package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandleHealth(t *testing.T) {
	s := NewServer()
	s.SetModel("model.onnx", "go", []string{"prefill", "decode"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid health JSON: %v", err)
	}
	if status.Status != "ok" {
		t.Errorf("expected status ok, got %q", status.Status)
	}
	if !status.Model.Loaded || status.Model.Path != "model.onnx" {
		t.Errorf("model info not reported: %+v", status.Model)
	}
	if len(status.Model.Signatures) != 2 {
		t.Errorf("expected 2 signatures, got %v", status.Model.Signatures)
	}
	if status.System.NumCPU <= 0 {
		t.Error("system info missing")
	}
}

func TestHandleHealthNoModel(t *testing.T) {
	s := NewServer()

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("invalid health JSON: %v", err)
	}
	if status.Model.Loaded {
		t.Error("model should not be reported loaded")
	}
}
