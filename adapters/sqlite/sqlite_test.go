package sqlite_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/schemagate/adapters/sqlite"
	"github.com/artpar/schemagate/ports"
)

func setupTestDB(t *testing.T) (*sqlite.DB, func()) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "schemagate-test.db")

	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
	}

	return db, cleanup
}

func publishedAt(version string, at time.Time) ports.PublishedSnapshot {
	return ports.PublishedSnapshot{
		ID:        "snap-" + version[:4],
		Version:   version,
		Label:     "release " + version[:4],
		Data:      []byte{0xa1, 0x01, 0x02},
		TypeCount: 3,
		CreatedAt: at,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate error: %v", err)
	}

	versions, err := db.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations error: %v", err)
	}
	if len(versions) != 2 || versions[0] != "001_snapshots" || versions[1] != "002_snapshot_seq" {
		t.Errorf("applied = %v", versions)
	}
}

func TestOpen_Memory(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}

	store := sqlite.NewSnapshotStore(db)
	if err := store.Save(context.Background(), publishedAt("aaaa1111", time.Now())); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if _, err := store.Latest(context.Background()); err != nil {
		t.Errorf("Latest error: %v", err)
	}
}

func TestSnapshotStore_SaveAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewSnapshotStore(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	snap := publishedAt("abcdef0123", now)
	if err := store.Save(ctx, snap); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := store.Get(ctx, "abcdef0123")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != snap.ID || got.Label != snap.Label || got.TypeCount != 3 {
		t.Errorf("Get = %+v", got)
	}
	if string(got.Data) != string(snap.Data) {
		t.Errorf("Data = %x, want %x", got.Data, snap.Data)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}

	byPrefix, err := store.Get(ctx, "abcd")
	if err != nil {
		t.Fatalf("Get(prefix) error: %v", err)
	}
	if byPrefix.Version != "abcdef0123" {
		t.Errorf("Get(prefix).Version = %s", byPrefix.Version)
	}
}

func TestSnapshotStore_Errors(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewSnapshotStore(db)
	ctx := context.Background()
	now := time.Now()

	if _, err := store.Latest(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Latest on empty store = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	if err := store.Save(ctx, publishedAt("ff001111", now)); err != nil {
		t.Fatal(err)
	}
	dup := publishedAt("ff001111", now)
	dup.ID = "other"
	if err := store.Save(ctx, dup); !errors.Is(err, ports.ErrDuplicateVersion) {
		t.Errorf("duplicate Save = %v, want ErrDuplicateVersion", err)
	}

	second := publishedAt("ff002222", now)
	second.ID = "snap-second"
	if err := store.Save(ctx, second); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "ff00"); !errors.Is(err, ports.ErrAmbiguousVersion) {
		t.Errorf("Get(ambiguous) = %v, want ErrAmbiguousVersion", err)
	}
}

func TestSnapshotStore_LatestAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewSnapshotStore(db)
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Same timestamp for all: order must follow publication.
	for i, v := range []string{"1111aaaa", "2222bbbb", "3333cccc"} {
		snap := publishedAt(v, at)
		snap.TypeCount = i + 1
		if err := store.Save(ctx, snap); err != nil {
			t.Fatalf("Save %s: %v", v, err)
		}
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest error: %v", err)
	}
	if latest.Version != "3333cccc" {
		t.Errorf("Latest = %s, want 3333cccc", latest.Version)
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(all) != 3 || all[0].Version != "3333cccc" || all[2].Version != "1111aaaa" {
		t.Errorf("List = %+v", all)
	}
	if all[0].Data != nil {
		t.Error("List should not load snapshot data")
	}

	limited, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List(2) error: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("List(2) returned %d", len(limited))
	}
}
