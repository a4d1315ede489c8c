package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"ferry/internal/config"
)

// Store persists the redacted batch snapshot in SQLite. Payload bytes never
// touch this database; they live in the payload store keyed by item id.
//
// A nil *Store is valid and turns every operation into a no-op, which is how
// the manager degrades when the database cannot be opened.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.QueueDBPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SaveSnapshot replaces the persisted snapshot with the given batch
// collection. The write is transactional so a crash mid-save leaves the
// previous snapshot intact.
func (s *Store) SaveSnapshot(ctx context.Context, batches []*Batch) error {
	if s == nil || s.db == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM batches`); err != nil {
		return fmt.Errorf("clear batches: %w", err)
	}

	for position, batch := range batches {
		metaJSON, err := encodeMeta(batch.DestinationMeta)
		if err != nil {
			return fmt.Errorf("encode destination meta for batch %s: %w", batch.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, position, status, destination_meta_json, created_at)
             VALUES (?, ?, ?, ?, ?)`,
			batch.ID,
			position,
			string(batch.Status),
			metaJSON,
			batch.CreatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert batch %s: %w", batch.ID, err)
		}
		for itemPos, item := range batch.Items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO items (id, batch_id, position, original_name, mime_type, status, error_kind, error_message)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID,
				batch.ID,
				itemPos,
				nullableString(item.OriginalName),
				nullableString(item.MimeType),
				string(item.Status),
				nullableString(string(item.ErrorKind)),
				nullableString(item.ErrorMessage),
			); err != nil {
				return fmt.Errorf("insert item %s: %w", item.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the persisted batch collection in stored order. Every
// item comes back with a placeholder payload handle; the bytes live in the
// payload store and are resolved lazily by the pipeline.
func (s *Store) LoadSnapshot(ctx context.Context) ([]*Batch, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, destination_meta_json, created_at FROM batches ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []*Batch
	index := make(map[string]*Batch)
	for rows.Next() {
		var (
			id         string
			statusStr  string
			metaRaw    sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&id, &statusStr, &metaRaw, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		status, ok := ParseBatchStatus(statusStr)
		if !ok {
			return nil, fmt.Errorf("batch %s has unknown status %q", id, statusStr)
		}
		meta, err := decodeMeta(metaRaw.String)
		if err != nil {
			return nil, fmt.Errorf("decode destination meta for batch %s: %w", id, err)
		}
		batch := &Batch{
			ID:              id,
			Status:          status,
			DestinationMeta: meta,
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			batch.CreatedAt = created
		}
		batches = append(batches, batch)
		index[id] = batch
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}

	itemRows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, original_name, mime_type, status, error_kind, error_message
         FROM items ORDER BY batch_id, position`)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			id           string
			batchID      string
			originalName sql.NullString
			mimeType     sql.NullString
			statusStr    string
			errorKind    sql.NullString
			errorMessage sql.NullString
		)
		if err := itemRows.Scan(&id, &batchID, &originalName, &mimeType, &statusStr, &errorKind, &errorMessage); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		batch := index[batchID]
		if batch == nil {
			continue
		}
		status, ok := ParseStatus(statusStr)
		if !ok {
			return nil, fmt.Errorf("item %s has unknown status %q", id, statusStr)
		}
		batch.Items = append(batch.Items, &Item{
			ID:           id,
			OriginalName: originalName.String,
			MimeType:     mimeType.String,
			Status:       status,
			ErrorKind:    ErrorKind(errorKind.String),
			ErrorMessage: errorMessage.String,
			Payload:      PlaceholderPayload(),
		})
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	for _, batch := range batches {
		batch.Recount()
	}
	return batches, nil
}

// Clear wipes the persisted snapshot.
func (s *Store) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM batches`); err != nil {
		return fmt.Errorf("clear batches: %w", err)
	}
	return nil
}

func encodeMeta(meta map[string]string) (any, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeMeta(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}
