package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/artpar/schemagate/ports"
)

// SnapshotStore implements ports.SnapshotStore using SQLite.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new SQLite snapshot store.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save records a published snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap ports.PublishedSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM snapshots`).Scan(&seq); err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, version, label, data, type_count, created_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.ID, snap.Version, snap.Label, snap.Data, snap.TypeCount, snap.CreatedAt.UTC(), seq)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ports.ErrDuplicateVersion
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}

	return tx.Commit()
}

// Get retrieves a snapshot by full version or unique version prefix.
func (s *SnapshotStore) Get(ctx context.Context, version string) (ports.PublishedSnapshot, error) {
	if version == "" {
		return ports.PublishedSnapshot{}, ports.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, label, data, type_count, created_at
		FROM snapshots
		WHERE version = ? OR substr(version, 1, ?) = ?
		ORDER BY version = ? DESC, seq DESC
		LIMIT 2
	`, version, len(version), version, version)
	if err != nil {
		return ports.PublishedSnapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	found, err := scanSnapshots(rows, true)
	if err != nil {
		return ports.PublishedSnapshot{}, err
	}

	switch {
	case len(found) == 0:
		return ports.PublishedSnapshot{}, ports.ErrNotFound
	case found[0].Version == version, len(found) == 1:
		return found[0], nil
	default:
		return ports.PublishedSnapshot{}, fmt.Errorf("%w: %s", ports.ErrAmbiguousVersion, version)
	}
}

// Latest returns the most recently published snapshot.
func (s *SnapshotStore) Latest(ctx context.Context) (ports.PublishedSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, version, label, data, type_count, created_at
		FROM snapshots
		ORDER BY seq DESC
		LIMIT 1
	`)

	var snap ports.PublishedSnapshot
	err := row.Scan(&snap.ID, &snap.Version, &snap.Label, &snap.Data, &snap.TypeCount, &snap.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.PublishedSnapshot{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.PublishedSnapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	return snap, nil
}

// List returns snapshots newest first. A limit of zero or less returns all.
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]ports.PublishedSnapshot, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version, label, NULL, type_count, created_at
		FROM snapshots
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows, false)
}

func scanSnapshots(rows *sql.Rows, withData bool) ([]ports.PublishedSnapshot, error) {
	var result []ports.PublishedSnapshot
	for rows.Next() {
		var snap ports.PublishedSnapshot
		var data []byte
		if err := rows.Scan(&snap.ID, &snap.Version, &snap.Label, &data, &snap.TypeCount, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if withData {
			snap.Data = data
		}
		result = append(result, snap)
	}
	return result, rows.Err()
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Ensure interface compliance.
var _ ports.SnapshotStore = (*SnapshotStore)(nil)
