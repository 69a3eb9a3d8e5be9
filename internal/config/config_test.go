package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q", cfg.ListenAddr)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Errorf("gemini_model = %q", cfg.GeminiModel)
	}
	if cfg.Workers != 4 {
		t.Errorf("workers = %d", cfg.Workers)
	}
	if cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("retry_base_delay = %v", cfg.RetryBaseDelay)
	}
	if cfg.RetrievalTopK != 3 {
		t.Errorf("retrieval_top_k = %d", cfg.RetrievalTopK)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CVEVAL_LISTEN_ADDR", ":9999")
	t.Setenv("CVEVAL_GEMINI_API_KEY", "test-key")
	t.Setenv("CVEVAL_WORKERS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("listen_addr = %q, want :9999", cfg.ListenAddr)
	}
	if cfg.GeminiAPIKey != "test-key" {
		t.Errorf("gemini_api_key not read from environment")
	}
	if cfg.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Workers)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("CVEVAL_WORKERS", "0")

	if _, err := Load(); err == nil {
		t.Error("expected error for zero workers")
	}
}
