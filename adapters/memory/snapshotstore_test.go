package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/schemagate/adapters/memory"
	"github.com/artpar/schemagate/ports"
)

func TestSnapshotStore(t *testing.T) {
	store := memory.NewSnapshotStore()
	ctx := context.Background()

	if _, err := store.Latest(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Latest on empty store = %v, want ErrNotFound", err)
	}

	data := []byte{1, 2, 3}
	for _, v := range []string{"aa11", "aa22", "bb33"} {
		err := store.Save(ctx, ports.PublishedSnapshot{ID: "id-" + v, Version: v, Data: data, CreatedAt: time.Now()})
		if err != nil {
			t.Fatalf("Save %s: %v", v, err)
		}
	}
	data[0] = 9

	if err := store.Save(ctx, ports.PublishedSnapshot{ID: "x", Version: "aa11"}); !errors.Is(err, ports.ErrDuplicateVersion) {
		t.Errorf("duplicate Save = %v", err)
	}

	tests := []struct {
		version string
		want    string
		err     error
	}{
		{"aa11", "aa11", nil},
		{"bb", "bb33", nil},
		{"aa", "", ports.ErrAmbiguousVersion},
		{"cc", "", ports.ErrNotFound},
		{"", "", ports.ErrNotFound},
	}
	for _, tt := range tests {
		got, err := store.Get(ctx, tt.version)
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Errorf("Get(%q) error = %v, want %v", tt.version, err, tt.err)
			}
			continue
		}
		if err != nil || got.Version != tt.want {
			t.Errorf("Get(%q) = %s, %v; want %s", tt.version, got.Version, err, tt.want)
		}
	}

	got, _ := store.Get(ctx, "aa11")
	if got.Data[0] != 1 {
		t.Error("Save should copy snapshot data")
	}

	latest, _ := store.Latest(ctx)
	if latest.Version != "bb33" {
		t.Errorf("Latest = %s, want bb33", latest.Version)
	}

	list, _ := store.List(ctx, 2)
	if len(list) != 2 || list[0].Version != "bb33" || list[1].Version != "aa22" {
		t.Errorf("List(2) = %+v", list)
	}
	if list[0].Data != nil {
		t.Error("List should omit data")
	}
}
