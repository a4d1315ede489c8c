package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"ferry/internal/blobstore"
	"ferry/internal/config"
	"ferry/internal/queue"
	"ferry/internal/uploader"
)

// Daemon coordinates the upload manager and the HTTP API, and enforces
// single-instance execution through a file lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	payloads *blobstore.Store
	manager  *uploader.Manager

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, payloads *blobstore.Store, mgr *uploader.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || mgr == nil || logger == nil {
		return nil, errors.New("daemon requires config, manager, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "ferryd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		payloads: payloads,
		manager:  mgr,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock, launches the upload manager, and begins
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another ferry daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.manager.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start uploader: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("ferry daemon started", slog.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", slog.String("error", err.Error()))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("ferry daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.payloads != nil {
		errs = append(errs, d.payloads.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// Manager exposes the upload manager for API handlers.
func (d *Daemon) Manager() *uploader.Manager {
	return d.manager
}

// APIAddr reports the bound API address, or empty before Start.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LockFilePath returns the path of the single-instance lock file.
func (d *Daemon) LockFilePath() string {
	return d.lockPath
}
