// Package memory provides in-memory implementations for testing.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/artpar/schemagate/ports"
)

// SnapshotStore is an in-memory implementation of ports.SnapshotStore.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots []ports.PublishedSnapshot // publication order
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{}
}

// Save records a published snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap ports.PublishedSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.snapshots {
		if existing.Version == snap.Version {
			return ports.ErrDuplicateVersion
		}
	}
	snap.Data = append([]byte(nil), snap.Data...)
	s.snapshots = append(s.snapshots, snap)
	return nil
}

// Get retrieves a snapshot by full version or unique version prefix.
func (s *SnapshotStore) Get(ctx context.Context, version string) (ports.PublishedSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == "" {
		return ports.PublishedSnapshot{}, ports.ErrNotFound
	}

	var matches []ports.PublishedSnapshot
	for _, snap := range s.snapshots {
		if snap.Version == version {
			return snap, nil
		}
		if strings.HasPrefix(snap.Version, version) {
			matches = append(matches, snap)
		}
	}

	switch len(matches) {
	case 0:
		return ports.PublishedSnapshot{}, ports.ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return ports.PublishedSnapshot{}, fmt.Errorf("%w: %s", ports.ErrAmbiguousVersion, version)
	}
}

// Latest returns the most recently published snapshot.
func (s *SnapshotStore) Latest(ctx context.Context) (ports.PublishedSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return ports.PublishedSnapshot{}, ports.ErrNotFound
	}
	return s.snapshots[len(s.snapshots)-1], nil
}

// List returns snapshots newest first, without their data.
func (s *SnapshotStore) List(ctx context.Context, limit int) ([]ports.PublishedSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ports.PublishedSnapshot
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if limit > 0 && len(result) == limit {
			break
		}
		snap := s.snapshots[i]
		snap.Data = nil
		result = append(result, snap)
	}
	return result, nil
}

// Ensure interface compliance.
var _ ports.SnapshotStore = (*SnapshotStore)(nil)
