// Copyright 2025 Leandro Veron
// SPDX-License-Identifier: Apache-2.0

// Package locuscache persists the client-side cache between sessions: entity
// partitions with their sync cursors, the push-subscription marker, and the
// locally generated client id.
package locuscache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/leandroveron1110/locus-sync/locussync"
)

// DB wraps the local SQLite snapshot database.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	wrapped, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return wrapped, nil
}

// New wraps an existing database handle, creating the snapshot tables if
// they do not exist. Tests pass an in-memory handle.
func New(db *sql.DB) (*DB, error) {
	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot database: %w", err)
	}
	return &DB{db: db, logger: slog.Default()}, nil
}

// initializeDatabase creates the snapshot tables and enables WAL mode.
func initializeDatabase(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		// Client info (one row per signed-in user)
		`CREATE TABLE IF NOT EXISTS _locus_client_info (
			user_id    TEXT NOT NULL,
			client_id  TEXT NOT NULL,          -- locally generated UUIDv4 (persisted)
			PRIMARY KEY (user_id)
		)`,

		// One snapshot per (tenant, entity kind)
		`CREATE TABLE IF NOT EXISTS _locus_partition (
			tenant_id       TEXT NOT NULL,
			kind            TEXT NOT NULL,     -- "orders", "images", ...
			items           TEXT NOT NULL,     -- JSON array in collection order
			last_sync_time  TEXT NOT NULL DEFAULT '',
			saved_at        TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (tenant_id, kind)
		)`,

		// Tenants whose push subscription has been set up already
		`CREATE TABLE IF NOT EXISTS _locus_push_subs (
			tenant_id  TEXT NOT NULL,
			PRIMARY KEY (tenant_id)
		)`,
	}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create snapshot table: %w", err)
		}
	}
	return nil
}

// Close closes the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// EnsureClientID returns the persisted client id for the user, generating
// and storing one on first call.
func (d *DB) EnsureClientID(userID string) (string, error) {
	var clientID string
	err := d.db.QueryRow(`SELECT client_id FROM _locus_client_info WHERE user_id = ?`, userID).Scan(&clientID)
	if errors.Is(err, sql.ErrNoRows) {
		clientID = uuid.New().String()
		_, err = d.db.Exec(`
			INSERT INTO _locus_client_info (user_id, client_id) VALUES (?, ?)
		`, userID, clientID)
		if err != nil {
			return "", fmt.Errorf("failed to insert client info: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("failed to query client info: %w", err)
	}
	return clientID, nil
}

// SavePartition stores one tenant's items and cursor under the given kind,
// replacing any previous snapshot.
func SavePartition[T locussync.Entity](ctx context.Context, d *DB, tenantID, kind string, items []T, lastSyncTime string) error {
	if items == nil {
		items = []T{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal %s snapshot for %s: %w", kind, tenantID, err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO _locus_partition (tenant_id, kind, items, last_sync_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, kind) DO UPDATE SET
			items = excluded.items,
			last_sync_time = excluded.last_sync_time,
			saved_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
	`, tenantID, kind, string(encoded), lastSyncTime)
	if err != nil {
		return fmt.Errorf("failed to save %s snapshot for %s: %w", kind, tenantID, err)
	}
	return nil
}

// LoadPartition reads one tenant's snapshot. ok is false when no snapshot
// exists for the (tenant, kind) pair.
func LoadPartition[T locussync.Entity](ctx context.Context, d *DB, tenantID, kind string) (items []T, lastSyncTime string, ok bool, err error) {
	var encoded string
	err = d.db.QueryRowContext(ctx, `
		SELECT items, last_sync_time FROM _locus_partition WHERE tenant_id = ? AND kind = ?
	`, tenantID, kind).Scan(&encoded, &lastSyncTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to load %s snapshot for %s: %w", kind, tenantID, err)
	}
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		return nil, "", false, fmt.Errorf("failed to unmarshal %s snapshot for %s: %w", kind, tenantID, err)
	}
	return items, lastSyncTime, true, nil
}

// SaveStore snapshots every partition of the store under the given kind.
func SaveStore[T locussync.Entity](ctx context.Context, d *DB, kind string, store *locussync.Store[T]) error {
	for _, tenantID := range store.Tenants() {
		items, cursor, ok := store.Snapshot(tenantID)
		if !ok {
			continue
		}
		if err := SavePartition(ctx, d, tenantID, kind, items, cursor); err != nil {
			return err
		}
	}
	return nil
}

// RestoreStore loads every snapshot of the given kind into the store,
// replacing its partitions wholesale.
func RestoreStore[T locussync.Entity](ctx context.Context, d *DB, kind string, store *locussync.Store[T]) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT tenant_id, items, last_sync_time FROM _locus_partition WHERE kind = ?
	`, kind)
	if err != nil {
		return fmt.Errorf("failed to query %s snapshots: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var tenantID, encoded, cursor string
		if err := rows.Scan(&tenantID, &encoded, &cursor); err != nil {
			return fmt.Errorf("failed to scan %s snapshot: %w", kind, err)
		}
		var items []T
		if err := json.Unmarshal([]byte(encoded), &items); err != nil {
			return fmt.Errorf("failed to unmarshal %s snapshot for %s: %w", kind, tenantID, err)
		}
		store.Restore(tenantID, items, cursor)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s snapshots: %w", kind, err)
	}
	return nil
}

// Reset wipes all partitions and the push-subscription marker. The client
// id survives; it identifies the install, not the session.
func (d *DB) Reset(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM _locus_partition`); err != nil {
		return fmt.Errorf("failed to clear partitions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM _locus_push_subs`); err != nil {
		return fmt.Errorf("failed to clear push subscriptions: %w", err)
	}
	return tx.Commit()
}
