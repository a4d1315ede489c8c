package blobstore

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/pebble"

	"ferry/internal/logging"
)

// Store holds raw payload bytes keyed by item id, backed by a Pebble database
// under the data directory.
//
// Availability is a capability decided once at open time: when the database
// cannot be opened the store stays usable but every operation is a logged
// no-op, trading the cross-restart durability guarantee for liveness.
type Store struct {
	db     *pebble.DB
	path   string
	logger *slog.Logger
}

// Open connects to the payload database at the given path. Open never fails;
// an unusable database yields a degraded store.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Warn("payload store unavailable, continuing in-memory only",
			logging.String("path", path),
			logging.Error(err),
		)
		return &Store{path: path, logger: logger}
	}
	return &Store{db: db, path: path, logger: logger}
}

// Available reports whether payloads are durably stored.
func (s *Store) Available() bool {
	return s != nil && s.db != nil
}

// Put stores payload bytes under the item id.
func (s *Store) Put(id string, data []byte) error {
	if !s.Available() {
		s.logUnavailable("put", id)
		return nil
	}
	if err := s.db.Set([]byte(id), data, pebble.Sync); err != nil {
		return fmt.Errorf("put payload %s: %w", id, err)
	}
	return nil
}

// Get retrieves payload bytes by item id. The boolean reports presence;
// a missing key is not an error.
func (s *Store) Get(id string) ([]byte, bool, error) {
	if !s.Available() {
		s.logUnavailable("get", id)
		return nil, false, nil
	}
	value, closer, err := s.db.Get([]byte(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get payload %s: %w", id, err)
	}
	defer closer.Close()

	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, true, nil
}

// Delete removes a payload. Deleting a missing key is not an error.
func (s *Store) Delete(id string) error {
	if !s.Available() {
		s.logUnavailable("delete", id)
		return nil
	}
	if err := s.db.Delete([]byte(id), pebble.Sync); err != nil {
		return fmt.Errorf("delete payload %s: %w", id, err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) logUnavailable(op, id string) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Debug("payload store operation skipped",
		logging.String("op", op),
		logging.String("item_id", id),
	)
}
