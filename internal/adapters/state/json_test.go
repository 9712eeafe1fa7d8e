package state

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/cascade-labs/cascade/internal/core"
)

func TestJSONStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	seed(t, store)
	if _, err := store.AppendError(ctx, &core.WorkItem{ID: "1", Title: "provision"}, "boom"); err != nil {
		t.Fatalf("AppendError() error = %v", err)
	}

	reopened, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	req, err := reopened.Request(ctx, "1")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if req == nil || len(req.Tasks) != 1 {
		t.Fatalf("tree not recovered: %+v", req)
	}
	records, err := reopened.Errors(ctx)
	if err != nil {
		t.Fatalf("Errors() error = %v", err)
	}
	if len(records) != 1 || records[0].ErrorID != "error_1" {
		t.Errorf("error log not recovered: %+v", records)
	}

	// New ids keep counting from the recovered log.
	rec, err := reopened.AppendError(ctx, &core.WorkItem{ID: "2", Title: "verify"}, "boom again")
	if err != nil {
		t.Fatalf("AppendError() error = %v", err)
	}
	if rec.ErrorID != "error_2" {
		t.Errorf("next id = %q, want error_2", rec.ErrorID)
	}
}

func TestJSONStore_ErrorLogLayout(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	if _, err := store.AppendError(ctx, &core.WorkItem{ID: "task_1", Title: "provision"}, "boom"); err != nil {
		t.Fatalf("AppendError() error = %v", err)
	}

	// The persisted log is a document keyed by error id, numbered from 1.
	data, err := os.ReadFile(filepath.Join(dir, errorsFileName))
	if err != nil {
		t.Fatalf("reading error log: %v", err)
	}
	var doc map[string]core.ErrorRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("error log is not a keyed document: %v\n%s", err, data)
	}
	if len(doc) != 1 {
		t.Fatalf("error log keys = %d, want 1", len(doc))
	}
	rec, ok := doc["error_1"]
	if !ok {
		t.Fatalf("error log has no error_1 key: %s", data)
	}
	if rec.ErrorID != "error_1" || rec.Error != "boom" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Unit == nil || rec.Unit.ID != "task_1" {
		t.Errorf("record unit = %+v, want task_1", rec.Unit)
	}
}

func TestNewJSONStore_CorruptedTree(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, treeFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewJSONStore(dir)
	if err == nil {
		t.Fatal("NewJSONStore(corrupt) = nil, want error")
	}
	if !core.IsCategory(err, core.ErrCatState) {
		t.Errorf("category = %v, want state", core.GetCategory(err))
	}
}

func TestJSONStore_RequestCopyIsDetached(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	ctx := context.Background()
	seed(t, store)

	req, err := store.Request(ctx, "1")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	req.Tasks[0].Status = core.StatusCompleted

	again, err := store.Request(ctx, "1")
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if again.Tasks[0].Status == core.StatusCompleted {
		t.Error("mutating the returned node leaked into the store")
	}
}
