package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_MODEL", "")
	t.Setenv("LLM_TIMEOUT_SECONDS", "")
	t.Setenv("DATABASE_DRIVER", "")

	cfg := Load()
	if cfg.LLMModel != "openai/gpt-5-nano" {
		t.Fatalf("unexpected model default %q", cfg.LLMModel)
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Fatalf("unexpected timeout default %v", cfg.LLMTimeout)
	}
	if cfg.ReplyTemperature != 0.7 || cfg.ExtractTemperature != 0.2 {
		t.Fatalf("unexpected temperatures %v/%v", cfg.ReplyTemperature, cfg.ExtractTemperature)
	}
	if cfg.DatabaseDriver != "postgres" {
		t.Fatalf("unexpected driver default %q", cfg.DatabaseDriver)
	}
}

func TestLoadOverridesAndBadValues(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("LLM_TIMEOUT_SECONDS", "not-a-number")
	t.Setenv("LLM_EXTRACT_TEMPERATURE", "0.1")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()
	if cfg.DatabaseDriver != "sqlite" {
		t.Fatalf("expected sqlite, got %q", cfg.DatabaseDriver)
	}
	if cfg.LLMTimeout != 60*time.Second {
		t.Fatalf("bad int should fall back, got %v", cfg.LLMTimeout)
	}
	if cfg.ExtractTemperature != 0.1 {
		t.Fatalf("expected 0.1, got %v", cfg.ExtractTemperature)
	}
	if !cfg.MinIOUseSSL {
		t.Fatal("expected MINIO_USE_SSL to parse")
	}
}
