// Package ports defines interfaces (contracts) between layers.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateVersion is returned when a schema version was already published.
var ErrDuplicateVersion = errors.New("schema version already published")

// ErrAmbiguousVersion is returned when a version prefix matches more than one snapshot.
var ErrAmbiguousVersion = errors.New("ambiguous schema version prefix")

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// PublishedSnapshot is a sealed registry snapshot recorded in the history.
type PublishedSnapshot struct {
	ID        string
	Version   string // content hash of the snapshot
	Label     string
	Data      []byte // canonical encoding, see registry.Encode
	TypeCount int
	CreatedAt time.Time
}

// SnapshotStore persists published snapshots.
type SnapshotStore interface {
	// Save records a snapshot. Returns ErrDuplicateVersion if the version exists.
	Save(ctx context.Context, s PublishedSnapshot) error

	// Get retrieves a snapshot by version. A unique version prefix is accepted.
	Get(ctx context.Context, version string) (PublishedSnapshot, error)

	// Latest returns the most recently published snapshot.
	Latest(ctx context.Context) (PublishedSnapshot, error)

	// List returns snapshots newest first, without their Data.
	List(ctx context.Context, limit int) ([]PublishedSnapshot, error)
}
