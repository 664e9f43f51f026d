package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load(slog.Default())

	if cfg.OutputDir != "output" {
		t.Errorf("OutputDir = %q, want output", cfg.OutputDir)
	}
	if cfg.SampleInterval != 10*time.Second {
		t.Errorf("SampleInterval = %v, want 10s", cfg.SampleInterval)
	}
	if cfg.Params.HeadUpThreshold != 2 || cfg.Params.HeadDownThreshold != 8 {
		t.Errorf("head thresholds = %v/%v, want 2/8", cfg.Params.HeadUpThreshold, cfg.Params.HeadDownThreshold)
	}
	if cfg.Postgres.Host != "localhost" || cfg.Postgres.Port != "5432" {
		t.Errorf("postgres defaults = %s:%s", cfg.Postgres.Host, cfg.Postgres.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLASSLENS_OUTPUT_DIR", "/tmp/results")
	t.Setenv("CLASSLENS_SAMPLE_INTERVAL", "5s")
	t.Setenv("CLASSLENS_HEAD_DOWN_THRESHOLD", "12.5")
	t.Setenv("CLASSLENS_WORKERS", "8")

	cfg := Load(slog.Default())

	if cfg.OutputDir != "/tmp/results" {
		t.Errorf("OutputDir = %q", cfg.OutputDir)
	}
	if cfg.SampleInterval != 5*time.Second {
		t.Errorf("SampleInterval = %v, want 5s", cfg.SampleInterval)
	}
	if cfg.Params.HeadDownThreshold != 12.5 {
		t.Errorf("HeadDownThreshold = %v, want 12.5", cfg.Params.HeadDownThreshold)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CLASSLENS_WORKERS", "many")
	t.Setenv("CLASSLENS_SAMPLE_INTERVAL", "soon")
	t.Setenv("CLASSLENS_HEAD_UP_THRESHOLD", "tall")

	cfg := Load(slog.Default())

	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want fallback 4", cfg.Workers)
	}
	if cfg.SampleInterval != 10*time.Second {
		t.Errorf("SampleInterval = %v, want fallback 10s", cfg.SampleInterval)
	}
	if cfg.Params.HeadUpThreshold != 2 {
		t.Errorf("HeadUpThreshold = %v, want fallback 2", cfg.Params.HeadUpThreshold)
	}
}
