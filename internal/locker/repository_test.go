package locker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Drrein86/lockerweb-core/internal/infrastructure/database"
	_ "github.com/Drrein86/lockerweb-core/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return NewStore(db)
}

func TestStore_UpsertAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := Locker{
		DeviceID: "LOC001",
		Address:  "10.0.0.5",
		Online:   true,
		LastSeen: time.Now().UTC().Truncate(time.Second),
		Cells: map[string]Cell{
			"A1": {Size: "small", Locked: true, HasPackage: true, PackageID: "pkg-1"},
			"B2": {Size: "large", Opened: true},
		},
	}
	if err := store.UpsertLocker(ctx, l); err != nil {
		t.Fatalf("UpsertLocker() error = %v", err)
	}

	got, err := store.ListLockers(ctx)
	if err != nil {
		t.Fatalf("ListLockers() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListLockers() returned %d lockers, want 1", len(got))
	}
	if got[0].DeviceID != "LOC001" || got[0].Address != "10.0.0.5" || !got[0].Online {
		t.Errorf("locker row = %+v", got[0])
	}
	if c := got[0].Cells["A1"]; !c.Locked || !c.HasPackage || c.PackageID != "pkg-1" || c.Size != "small" {
		t.Errorf("cell A1 = %+v", c)
	}
	if c := got[0].Cells["B2"]; !c.Opened || c.Size != "large" {
		t.Errorf("cell B2 = %+v", c)
	}
}

func TestStore_UpsertIsLastWriteWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	l := Locker{
		DeviceID: "LOC001",
		Online:   true,
		LastSeen: time.Now(),
		Cells:    map[string]Cell{"A1": {Locked: true}},
	}
	if err := store.UpsertLocker(ctx, l); err != nil {
		t.Fatal(err)
	}

	l.Online = false
	l.Cells["A1"] = Cell{Locked: false, HasPackage: true, PackageID: "pkg-2"}
	if err := store.UpsertLocker(ctx, l); err != nil {
		t.Fatal(err)
	}

	got, err := store.ListLockers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected a single row after double upsert, got %d", len(got))
	}
	if got[0].Online {
		t.Error("online flag not overwritten")
	}
	if c := got[0].Cells["A1"]; c.Locked || !c.HasPackage || c.PackageID != "pkg-2" {
		t.Errorf("cell A1 = %+v, second write did not win", c)
	}
}

func TestStore_ListEmpty(t *testing.T) {
	store := newTestStore(t)

	got, err := store.ListLockers(context.Background())
	if err != nil {
		t.Fatalf("ListLockers() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ListLockers() = %v, want empty", got)
	}
}
