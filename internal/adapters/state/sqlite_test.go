package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cascade-labs/cascade/internal/core"
)

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cascade.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	seed(t, store)
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	req, err := reopened.Request(ctx, "1")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if req == nil || len(req.Tasks) != 1 || len(req.Tasks[0].Subtasks) != 1 {
		t.Fatalf("tree not recovered: %+v", req)
	}
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cascade.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := store.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
	store.Close()
}

func TestSQLiteStore_SiblingOrderStable(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cascade.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	seed(t, store)
	// Insert in non-lexicographic order; read-back must keep insert order.
	for _, id := range []string{"task_10", "task_2"} {
		ref := core.UnitRef{RequestID: "1", TaskID: id}
		if err := store.PutUnit(ctx, ref, id, "", core.StatusPending); err != nil {
			t.Fatalf("PutUnit(%s) error = %v", id, err)
		}
	}

	req, err := store.Request(ctx, "1")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	got := make([]string, 0, len(req.Tasks))
	for _, task := range req.Tasks {
		got = append(got, task.ID)
	}
	want := []string{"task_1", "task_10", "task_2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("task order = %v, want %v", got, want)
		}
	}
}
