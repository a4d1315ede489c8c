package testsupport

import (
	"path/filepath"
	"testing"

	"ferry/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Sink.URL = "http://127.0.0.1:0/upload"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithMaxConcurrency overrides the uploader concurrency cap.
func WithMaxConcurrency(n int) ConfigOption {
	return func(c *config.Config) {
		c.Uploader.MaxConcurrency = n
	}
}

// WithSinkURL points the config at a test upload sink.
func WithSinkURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.Sink.URL = url
	}
}

// WithTransformURL points the config at a test transform service.
func WithTransformURL(url string) ConfigOption {
	return func(c *config.Config) {
		c.Transform.URL = url
	}
}
