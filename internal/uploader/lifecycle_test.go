package uploader_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/queue"
	"ferry/internal/services/transform"
	"ferry/internal/testsupport"
	"ferry/internal/uploader"
)

func TestAddBatchAdmissionControl(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Uploader.MaxPendingBatches = 1
		c.Uploader.MaxPayloadBytes = 64
	})
	ctx := context.Background()

	if _, err := env.mgr.AddBatch(ctx, nil, nil); !errors.Is(err, uploader.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}

	huge := []uploader.Submission{{Name: "big.bin", Data: make([]byte, 65)}}
	if _, err := env.mgr.AddBatch(ctx, nil, huge); !errors.Is(err, uploader.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	// The manager is not started, so the first batch stays pending and the
	// second submission hits the unfinished-batch cap.
	if _, err := env.mgr.AddBatch(ctx, nil, submissions("a")); err != nil {
		t.Fatalf("first AddBatch failed: %v", err)
	}
	if _, err := env.mgr.AddBatch(ctx, nil, submissions("b")); !errors.Is(err, uploader.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestAddBatchDetectsMimeType(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.mgr.AddBatch(context.Background(), nil, []uploader.Submission{
		{Name: "page.html", Data: []byte("<!DOCTYPE html><html><body>hi</body></html>")},
		{Name: "given.bin", MimeType: "application/x-custom", Data: []byte{0x01}},
	})
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	batch := findBatch(env.mgr.Snapshot(), id)
	if got := batch.Items[0].MimeType; got != "text/html; charset=utf-8" {
		t.Fatalf("expected detected html mime type, got %q", got)
	}
	if got := batch.Items[1].MimeType; got != "application/x-custom" {
		t.Fatalf("explicit mime type must be preserved, got %q", got)
	}
}

func TestNewestBatchFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.mgr.AddBatch(ctx, nil, submissions("a"))
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	second, err := env.mgr.AddBatch(ctx, nil, submissions("b"))
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	batches := env.mgr.Snapshot()
	if batches[0].ID != second || batches[1].ID != first {
		t.Fatalf("expected newest batch first, got %s then %s", batches[0].ID, batches[1].ID)
	}
}

func TestRemoveBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.mgr.AddBatch(ctx, nil, submissions("a"))
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	itemID := findBatch(env.mgr.Snapshot(), id).Items[0].ID

	if err := env.mgr.Remove(id); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if findBatch(env.mgr.Snapshot(), id) != nil {
		t.Fatal("batch still present after Remove")
	}
	if _, ok, err := env.payloads.Get(itemID); err != nil || ok {
		t.Fatalf("payload still present after Remove, ok=%v err=%v", ok, err)
	}
	if err := env.mgr.Remove(id); !errors.Is(err, uploader.ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}

	persisted, err := env.store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(persisted) != 0 {
		t.Fatalf("expected empty persisted snapshot, got %d batches", len(persisted))
	}
}

func TestClearCompletedLeavesUnfinished(t *testing.T) {
	env := newTestEnv(t)
	env.start(t)
	ctx := context.Background()

	done, err := env.mgr.AddBatch(ctx, nil, submissions("a"))
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	waitFor(t, "completion", func() bool {
		batch := findBatch(env.mgr.Snapshot(), done)
		return batch != nil && batch.Status == queue.BatchCompleted
	})

	// Hold a second batch mid-flight so it must survive the clear.
	env.sink.gate = make(chan struct{})
	env.sink.arrivals = make(chan string, 1)
	held, err := env.mgr.AddBatch(ctx, nil, submissions("b"))
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}
	<-env.sink.arrivals

	if got := env.mgr.ClearCompleted(); got != 1 {
		t.Fatalf("expected 1 cleared batch, got %d", got)
	}
	if findBatch(env.mgr.Snapshot(), done) != nil {
		t.Fatal("completed batch survived ClearCompleted")
	}
	if findBatch(env.mgr.Snapshot(), held) == nil {
		t.Fatal("in-flight batch removed by ClearCompleted")
	}
	close(env.sink.gate)
}

func TestClearAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := env.mgr.AddBatch(ctx, nil, submissions(name)); err != nil {
			t.Fatalf("AddBatch failed: %v", err)
		}
	}

	if got := env.mgr.ClearAll(); got != 3 {
		t.Fatalf("expected 3 cleared batches, got %d", got)
	}
	if got := len(env.mgr.Snapshot()); got != 0 {
		t.Fatalf("expected empty queue, got %d batches", got)
	}
	persisted, err := env.store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(persisted) != 0 {
		t.Fatalf("expected empty persisted snapshot, got %d batches", len(persisted))
	}
}

func TestSubscribeObservesSubmissions(t *testing.T) {
	env := newTestEnv(t)
	updates, cancel := env.mgr.Subscribe()
	defer cancel()

	// First delivery is the current (empty) snapshot.
	if initial := <-updates; len(initial) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d batches", len(initial))
	}

	id, err := env.mgr.AddBatch(context.Background(), nil, submissions("a"))
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	snap := <-updates
	batch := findBatch(snap, id)
	if batch == nil {
		t.Fatal("subscription missed the submitted batch")
	}
	// Snapshots never carry payload bytes.
	if _, resident := batch.Items[0].Payload.Resident(); resident {
		t.Fatal("snapshot leaked resident payload bytes")
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.mgr.AddBatch(context.Background(), nil, submissions("a"))
	if err != nil {
		t.Fatalf("AddBatch failed: %v", err)
	}

	snap := findBatch(env.mgr.Snapshot(), id)
	snap.Status = queue.BatchCompleted
	snap.Items[0].Status = queue.StatusSuccess

	fresh := findBatch(env.mgr.Snapshot(), id)
	if fresh.Status != queue.BatchPending || fresh.Items[0].Status != queue.StatusPending {
		t.Fatal("mutating a snapshot leaked into manager state")
	}
}

func TestManagerStatus(t *testing.T) {
	env := newTestEnv(t, testsupport.WithMaxConcurrency(4))

	status := env.mgr.Status()
	if status.Running {
		t.Fatal("manager reported running before Start")
	}
	if status.MaxConcurrency != 4 {
		t.Fatalf("expected MaxConcurrency 4, got %d", status.MaxConcurrency)
	}
	if !status.Durable {
		t.Fatal("expected durable status with live stores")
	}

	env.start(t)
	if !env.mgr.Status().Running {
		t.Fatal("manager reported stopped after Start")
	}
}

// rejectingPayloadStore keeps payloads in memory and fails a chosen Put.
type rejectingPayloadStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	failOnPut int
	puts      int
}

func newRejectingPayloadStore(failOnPut int) *rejectingPayloadStore {
	return &rejectingPayloadStore{data: make(map[string][]byte), failOnPut: failOnPut}
}

func (r *rejectingPayloadStore) Available() bool { return true }

func (r *rejectingPayloadStore) Put(id string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts++
	if r.puts == r.failOnPut {
		return errors.New("payload store: disk full")
	}
	r.data[id] = append([]byte(nil), data...)
	return nil
}

func (r *rejectingPayloadStore) Get(id string) ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.data[id]
	return data, ok, nil
}

func (r *rejectingPayloadStore) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
	return nil
}

func (r *rejectingPayloadStore) stored() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}

func TestAddBatchReclaimsPayloadsOnStoreFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	payloads := newRejectingPayloadStore(3)
	mgr := uploader.New(cfg, store, payloads, transform.Passthrough{}, newStubSink(), logging.NewNop())

	_, err := mgr.AddBatch(context.Background(), nil, submissions("a.bin", "b.bin", "c.bin"))
	if err == nil {
		t.Fatal("expected AddBatch to fail when the payload store rejects a write")
	}
	if n := payloads.stored(); n != 0 {
		t.Fatalf("rejected batch left %d payloads behind", n)
	}
	if batches := mgr.Snapshot(); len(batches) != 0 {
		t.Fatalf("rejected batch was queued anyway: %d batches", len(batches))
	}
}
