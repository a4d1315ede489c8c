package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ferry/internal/config"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := config.Default()
	if err := (&cfg).Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Uploader.MaxConcurrency != 3 {
		t.Fatalf("expected default max_concurrency 3, got %d", cfg.Uploader.MaxConcurrency)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[uploader]
max_concurrency = 5

[sink]
url = "http://127.0.0.1:9000/upload/"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %s, got %s", path, resolved)
	}
	if cfg.Uploader.MaxConcurrency != 5 {
		t.Fatalf("expected max_concurrency 5, got %d", cfg.Uploader.MaxConcurrency)
	}
	if cfg.Uploader.StageTimeoutSeconds != 60 {
		t.Fatalf("expected default stage timeout, got %d", cfg.Uploader.StageTimeoutSeconds)
	}
	if cfg.Sink.URL != "http://127.0.0.1:9000/upload" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Sink.URL)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Uploader.WatchdogSeconds != 2 {
		t.Fatalf("expected default watchdog interval, got %d", cfg.Uploader.WatchdogSeconds)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero concurrency", func(c *config.Config) { c.Uploader.MaxConcurrency = 0 }, "max_concurrency"},
		{"zero timeout", func(c *config.Config) { c.Uploader.StageTimeoutSeconds = 0 }, "stage_timeout"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"empty data dir", func(c *config.Config) { c.Paths.DataDir = "" }, "data_dir"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := (&cfg).Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if _, err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, err := config.CreateSample(path); err == nil {
		t.Fatal("expected error when config already exists")
	}
}
