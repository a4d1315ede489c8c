package testsupport

import (
	"testing"

	"ferry/internal/config"
	"ferry/internal/queue"
)

// MustOpenStore opens a queue store for the provided config and registers
// cleanup on test completion.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close queue store: %v", err)
		}
	})
	return store
}
