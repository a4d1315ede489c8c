package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateUploader(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return fmt.Errorf("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return fmt.Errorf("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateUploader() error {
	if c.Uploader.MaxConcurrency < 1 {
		return fmt.Errorf("uploader.max_concurrency must be at least 1, got %d", c.Uploader.MaxConcurrency)
	}
	if c.Uploader.StageTimeoutSeconds < 1 {
		return fmt.Errorf("uploader.stage_timeout_seconds must be at least 1, got %d", c.Uploader.StageTimeoutSeconds)
	}
	if c.Uploader.WatchdogSeconds < 1 {
		return fmt.Errorf("uploader.watchdog_interval_seconds must be at least 1, got %d", c.Uploader.WatchdogSeconds)
	}
	if c.Uploader.MaxPendingBatches < 1 {
		return fmt.Errorf("uploader.max_pending_batches must be at least 1, got %d", c.Uploader.MaxPendingBatches)
	}
	if c.Uploader.MaxPayloadBytes < 1 {
		return fmt.Errorf("uploader.max_payload_bytes must be positive, got %d", c.Uploader.MaxPayloadBytes)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
