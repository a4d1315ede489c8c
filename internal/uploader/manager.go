package uploader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ferry/internal/blobstore"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/queue"
	"ferry/internal/services/sink"
	"ferry/internal/services/transform"
)

// PayloadStore is the durable byte store backing item payloads.
// *blobstore.Store satisfies it, including its degraded no-op mode.
type PayloadStore interface {
	Available() bool
	Put(id string, data []byte) error
	Get(id string) ([]byte, bool, error)
	Delete(id string) error
}

var _ PayloadStore = (*blobstore.Store)(nil)

// Manager owns the batch collection and drives items through the
// transform-upload pipeline under a global concurrency cap.
//
// All mutations to the collection are serialized through m.mu; the only
// parallelism is the transform/upload network calls of up to MaxConcurrency
// pipelines in flight at once.
type Manager struct {
	cfg         *config.Config
	store       *queue.Store
	payloads    PayloadStore
	transformer transform.Service
	uploadSink  sink.Service
	logger      *slog.Logger

	stageTimeout     time.Duration
	watchdogInterval time.Duration
	maxConcurrency   int

	mu          sync.Mutex
	batches     []*queue.Batch
	activeCount int
	inFlight    map[string]struct{}
	subscribers map[chan []*queue.Batch]struct{}

	wake    chan struct{}
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// StatusSummary reports manager runtime information.
type StatusSummary struct {
	Running        bool
	ActiveCount    int
	MaxConcurrency int
	Durable        bool
	Queue          queue.HealthSummary
}

// New constructs an upload manager. The queue store may be nil, in which case
// state survives only in memory.
func New(cfg *config.Config, store *queue.Store, payloads PayloadStore, transformer transform.Service, uploadSink sink.Service, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:              cfg,
		store:            store,
		payloads:         payloads,
		transformer:      transformer,
		uploadSink:       uploadSink,
		logger:           logger,
		stageTimeout:     time.Duration(cfg.Uploader.StageTimeoutSeconds) * time.Second,
		watchdogInterval: time.Duration(cfg.Uploader.WatchdogSeconds) * time.Second,
		maxConcurrency:   cfg.Uploader.MaxConcurrency,
		inFlight:         make(map[string]struct{}),
		subscribers:      make(map[chan []*queue.Batch]struct{}),
		wake:             make(chan struct{}, 1),
	}
}

// Start recovers persisted state and launches the scheduling loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("uploader already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.recover(runCtx)

	m.wg.Add(1)
	go m.run(runCtx)

	m.kick()
	m.logger.Info("uploader started",
		logging.Int("max_concurrency", m.maxConcurrency),
		logging.Duration("stage_timeout", m.stageTimeout),
		logging.Bool("durable", m.payloads.Available()),
	)
	return nil
}

// Stop terminates the scheduling loop and waits for in-flight pipelines.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("uploader stopped")
}

// Status reports a point-in-time summary of the manager.
func (m *Manager) Status() StatusSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StatusSummary{
		Running:        m.running,
		ActiveCount:    m.activeCount,
		MaxConcurrency: m.maxConcurrency,
		Durable:        m.payloads.Available(),
		Queue:          queue.Summarize(m.batches),
	}
}

// persistLocked writes the redacted snapshot synchronously with the mutation
// that triggered it. Persistence failures are logged, never fatal.
func (m *Manager) persistLocked() {
	if err := m.store.SaveSnapshot(context.Background(), m.batches); err != nil {
		m.logger.Warn("persist queue snapshot failed", logging.Error(err))
	}
}

func (m *Manager) batchByIDLocked(id string) *queue.Batch {
	for _, batch := range m.batches {
		if batch.ID == id {
			return batch
		}
	}
	return nil
}
