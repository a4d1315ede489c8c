// Package daemonrun assembles and runs the ferry daemon process: logging,
// stores, the upload manager, and the HTTP API, torn down on SIGINT/SIGTERM.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"ferry/internal/blobstore"
	"ferry/internal/config"
	"ferry/internal/daemon"
	"ferry/internal/logging"
	"ferry/internal/queue"
	"ferry/internal/services/sink"
	"ferry/internal/services/transform"
	"ferry/internal/uploader"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the ferry daemon runtime loop and blocks until the context is
// cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if opts.LogLevel != "" {
		logger, err = logging.New(logging.Options{
			Level:       opts.LogLevel,
			Format:      cfg.Logging.Format,
			OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "ferry.log")},
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "ferryd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Warn("queue store unavailable, running without snapshots", logging.Error(err))
		store = nil
	}
	payloads := blobstore.Open(cfg.PayloadDBPath(), logger)

	mgr := uploader.New(cfg, store, payloads, transform.NewFromConfig(cfg), sink.NewFromConfig(cfg), logger)
	d, err := daemon.New(cfg, store, payloads, mgr, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("ferry daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
