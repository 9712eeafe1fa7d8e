package state

import (
	"fmt"
	"path/filepath"

	"github.com/cascade-labs/cascade/internal/core"
)

// Backend names accepted by NewStore.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// NewStore creates an ExecutionStore of the given backend rooted at dir
// (e.g. ".cascade/state").
func NewStore(backend, dir string) (core.ExecutionStore, error) {
	switch backend {
	case BackendJSON, "":
		return NewJSONStore(dir)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "cascade.db"))
	default:
		return nil, core.ErrValidation("STORE_BACKEND_UNKNOWN",
			fmt.Sprintf("unknown store backend %q (want json or sqlite)", backend))
	}
}

// Closeable is an optional interface for stores that need cleanup.
type Closeable interface {
	Close() error
}

// CloseStore safely closes a store if it implements Closeable.
func CloseStore(store core.ExecutionStore) error {
	if closeable, ok := store.(Closeable); ok {
		return closeable.Close()
	}
	return nil
}
