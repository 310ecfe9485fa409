package config

import (
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MaxTokens != 128 {
		t.Errorf("expected MaxTokens 128, got %d", cfg.MaxTokens)
	}
	if cfg.Backend != BackendAuto {
		t.Errorf("expected BackendAuto, got %v", cfg.Backend)
	}
	if cfg.Sampling.Temperature != 0 {
		t.Errorf("expected greedy default (temperature 0), got %v", cfg.Sampling.Temperature)
	}
	if cfg.Sampling.TopP != 0.95 {
		t.Errorf("expected TopP 0.95, got %v", cfg.Sampling.TopP)
	}
}

func validBase() Config {
	cfg := Default()
	cfg.ModelPath = "model.onnx"
	cfg.TokenizerPath = "tokenizer.json"
	cfg.Prompt = "Hello"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing model", func(c *Config) { c.ModelPath = "" }, true},
		{"missing tokenizer", func(c *Config) { c.TokenizerPath = "" }, true},
		{"missing prompt", func(c *Config) { c.Prompt = "" }, true},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }, true},
		{"negative max tokens", func(c *Config) { c.MaxTokens = -3 }, true},
		{"negative threads", func(c *Config) { c.Threads = -1 }, true},
		{"negative temperature", func(c *Config) { c.Sampling.Temperature = -0.5 }, true},
		{"top_p out of range", func(c *Config) { c.Sampling.TopP = 1.5 }, true},
		{"negative top_k", func(c *Config) { c.Sampling.TopK = -1 }, true},
		{"sampling enabled ok", func(c *Config) { c.Sampling.Temperature = 0.8 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendAuto, false},
		{"auto", BackendAuto, false},
		{"go", BackendGo, false},
		{"simplego", BackendGo, false},
		{"cpu", BackendGo, false},
		{"XLA", BackendXLA, false},
		{"metal", BackendAuto, true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseBackend(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBackendString(t *testing.T) {
	if BackendGo.String() != "go" || BackendXLA.String() != "xla" || BackendAuto.String() != "auto" {
		t.Error("Backend String() mismatch")
	}
}
