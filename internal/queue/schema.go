package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion gates every open. There is no migration path: a snapshot
// store is rebuilt from scratch when the layout changes.
const schemaVersion = 1

// ErrSchemaMismatch is returned when the on-disk schema was written by a
// different version of ferry.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// initSchema creates the snapshot tables on first open and verifies the
// recorded version on every later one.
func (s *Store) initSchema(ctx context.Context) error {
	version, found, err := s.storedVersion(ctx)
	if err != nil {
		return err
	}
	if !found {
		return s.createSchema(ctx)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (run 'ferry clear --all' or delete the database)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

// storedVersion reports the version recorded in the database, or found=false
// for a fresh database without a schema_version table.
func (s *Store) storedVersion(ctx context.Context) (version int, found bool, err error) {
	var name string
	err = s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("inspect schema: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return version, true, nil
}

// createSchema applies the embedded DDL and records the version, atomically:
// a crash mid-create leaves no schema_version row and the next open retries.
func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}
