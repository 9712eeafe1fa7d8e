package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cascade-labs/cascade/internal/core"
)

const (
	treeFileName   = "tree.json"
	errorsFileName = "errors.json"
)

// JSONStore implements ExecutionStore with two JSON documents on disk: the
// execution tree and the append-only error log. Both are rewritten atomically
// on every mutation, so a crash leaves the previous consistent document in
// place rather than a torn file.
type JSONStore struct {
	treePath   string
	errorsPath string

	mu     sync.Mutex
	tree   core.Tree
	errors []core.ErrorRecord
}

// NewJSONStore opens (or creates) a JSON store rooted at dir. Absent files
// mean an empty tree and log; unreadable or malformed files are a hard error,
// never silently reset.
func NewJSONStore(dir string) (*JSONStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, core.ErrPersistence("creating state directory").WithCause(err)
	}

	s := &JSONStore{
		treePath:   filepath.Join(dir, treeFileName),
		errorsPath: filepath.Join(dir, errorsFileName),
		tree:       core.Tree{},
		errors:     []core.ErrorRecord{},
	}

	if err := loadJSON(s.treePath, &s.tree); err != nil {
		return nil, err
	}
	errorDoc := map[string]core.ErrorRecord{}
	if err := loadJSON(s.errorsPath, &errorDoc); err != nil {
		return nil, err
	}
	s.errors = errorLogRecords(errorDoc)
	return s, nil
}

// errorLogRecords restores append order from the keyed error-log document.
func errorLogRecords(doc map[string]core.ErrorRecord) []core.ErrorRecord {
	records := make([]core.ErrorRecord, 0, len(doc))
	for id, rec := range doc {
		rec.ErrorID = id
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return core.ParseErrorID(records[i].ErrorID) < core.ParseErrorID(records[j].ErrorID)
	})
	return records
}

func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return core.ErrPersistence(fmt.Sprintf("reading %s", filepath.Base(path))).WithCause(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return core.ErrState(core.CodeStoreCorrupted,
			fmt.Sprintf("%s is not valid JSON", filepath.Base(path))).WithCause(err)
	}
	return nil
}

func (s *JSONStore) flushTree() error {
	data, err := json.MarshalIndent(s.tree, "", "  ")
	if err != nil {
		return core.ErrPersistence("marshaling execution tree").WithCause(err)
	}
	if err := atomicWriteFile(s.treePath, data, 0o644); err != nil {
		return core.ErrPersistence("writing execution tree").WithCause(err)
	}
	return nil
}

func (s *JSONStore) flushErrors() error {
	doc := make(map[string]core.ErrorRecord, len(s.errors))
	for _, rec := range s.errors {
		doc[rec.ErrorID] = rec
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return core.ErrPersistence("marshaling error log").WithCause(err)
	}
	if err := atomicWriteFile(s.errorsPath, data, 0o644); err != nil {
		return core.ErrPersistence("writing error log").WithCause(err)
	}
	return nil
}

// InitRequest creates or resets the root node for a request.
func (s *JSONStore) InitRequest(_ context.Context, requestID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree.InitRequest(requestID, content)
	return s.flushTree()
}

// PutUnit creates or updates a unit in the tree.
func (s *JSONStore) PutUnit(_ context.Context, ref core.UnitRef, title, description string, status core.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tree.PutUnit(ref, title, description, status); err != nil {
		return err
	}
	return s.flushTree()
}

// SetStatus updates an existing unit's status.
func (s *JSONStore) SetStatus(_ context.Context, ref core.UnitRef, status core.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tree.SetStatus(ref, status); err != nil {
		return err
	}
	return s.flushTree()
}

// SetDescription rewrites a task's description.
func (s *JSONStore) SetDescription(_ context.Context, ref core.UnitRef, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tree.SetDescription(ref, description); err != nil {
		return err
	}
	return s.flushTree()
}

// AppendAction appends to a step's action log.
func (s *JSONStore) AppendAction(_ context.Context, ref core.UnitRef, action core.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tree.AppendAction(ref, action); err != nil {
		return err
	}
	return s.flushTree()
}

// AppendRagAction appends to a task's rag_actions log.
func (s *JSONStore) AppendRagAction(_ context.Context, ref core.UnitRef, action core.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tree.AppendRagAction(ref, action); err != nil {
		return err
	}
	return s.flushTree()
}

// ClearSubtree removes the unit's descendant state.
func (s *JSONStore) ClearSubtree(_ context.Context, ref core.UnitRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tree.ClearSubtree(ref); err != nil {
		return err
	}
	return s.flushTree()
}

// Request returns one request's subtree, or nil if absent. The result is a
// detached copy; mutating it does not touch the store.
func (s *JSONStore) Request(_ context.Context, requestID string) (*core.RequestNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.tree[requestID]
	if !ok {
		return nil, nil
	}
	return copyRequest(node)
}

// ListRequests returns all request ids in the tree document.
func (s *JSONStore) ListRequests(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tree))
	for id := range s.tree {
		ids = append(ids, id)
	}
	return ids, nil
}

// AppendError appends a failure record and assigns it the next error id.
func (s *JSONStore) AppendError(_ context.Context, unit *core.WorkItem, message string) (core.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := core.ErrorRecord{
		ErrorID: core.FormatErrorID(len(s.errors) + 1),
		Unit:    unit,
		Error:   message,
	}
	s.errors = append(s.errors, rec)
	if err := s.flushErrors(); err != nil {
		s.errors = s.errors[:len(s.errors)-1]
		return core.ErrorRecord{}, err
	}
	return rec, nil
}

// Errors returns all failure records in append order.
func (s *JSONStore) Errors(_ context.Context) ([]core.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ErrorRecord, len(s.errors))
	copy(out, s.errors)
	return out, nil
}

// TreePath returns the tree document path.
func (s *JSONStore) TreePath() string {
	return s.treePath
}

func copyRequest(node *core.RequestNode) (*core.RequestNode, error) {
	data, err := json.Marshal(node)
	if err != nil {
		return nil, core.ErrPersistence("copying request node").WithCause(err)
	}
	var out core.RequestNode
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, core.ErrPersistence("copying request node").WithCause(err)
	}
	return &out, nil
}

// Verify that JSONStore implements core.ExecutionStore.
var _ core.ExecutionStore = (*JSONStore)(nil)
