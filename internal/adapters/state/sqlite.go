package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/cascade-labs/cascade/internal/core"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore implements ExecutionStore with SQLite storage. The tree is
// normalized into request/unit/action rows; every mutation commits in its
// own transaction, so durability holds at operation granularity.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, core.ErrPersistence("creating state directory").WithCause(err)
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, core.ErrPersistence("opening database").WithCause(err)
	}

	s := &SQLiteStore{dbPath: dbPath, db: db}
	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, core.ErrPersistence("running migrations").WithCause(
				fmt.Errorf("%w (close error: %v)", err, closeErr))
		}
		return nil, core.ErrPersistence("running migrations").WithCause(err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet, run initial migration
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	return nil
}

// refDepth returns how deep the ref addresses: 0 request, 1 task, 2 subtask,
// 3 step.
func refDepth(ref core.UnitRef) int {
	switch {
	case ref.TaskID == "":
		return 0
	case ref.SubtaskID == "":
		return 1
	case ref.StepID == "":
		return 2
	default:
		return 3
	}
}

// InitRequest creates or resets the root node for a request.
func (s *SQLiteStore) InitRequest(ctx context.Context, requestID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ErrPersistence("beginning transaction").WithCause(err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO requests (id, content, status) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content, status = excluded.status
	`, requestID, content, core.StatusExecuting)
	if err != nil {
		return core.ErrPersistence("upserting request").WithCause(err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM units WHERE request_id = ?", requestID); err != nil {
		return core.ErrPersistence("resetting request units").WithCause(err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM actions WHERE request_id = ?", requestID); err != nil {
		return core.ErrPersistence("resetting request actions").WithCause(err)
	}
	if err := tx.Commit(); err != nil {
		return core.ErrPersistence("committing request init").WithCause(err)
	}
	return nil
}

// PutUnit creates or updates a unit. Parents must already exist.
func (s *SQLiteStore) PutUnit(ctx context.Context, ref core.UnitRef, title, description string, status core.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ErrPersistence("beginning transaction").WithCause(err)
	}
	defer func() { _ = tx.Rollback() }()

	if refDepth(ref) == 0 {
		res, err := tx.ExecContext(ctx, "UPDATE requests SET status = ? WHERE id = ?", status, ref.RequestID)
		if err != nil {
			return core.ErrPersistence("updating request status").WithCause(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.ErrNotFound("request", ref.RequestID)
		}
		return commit(tx)
	}

	if err := s.checkParent(ctx, tx, ref); err != nil {
		return err
	}

	pos, err := s.nextPosition(ctx, tx, ref)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO units (request_id, task_id, subtask_id, step_id, status, title, description, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(request_id, task_id, subtask_id, step_id) DO UPDATE SET
			status = excluded.status,
			title = CASE WHEN excluded.title = '' THEN units.title ELSE excluded.title END,
			description = CASE WHEN excluded.description = '' THEN units.description ELSE excluded.description END
	`, ref.RequestID, ref.TaskID, ref.SubtaskID, ref.StepID, status, title, description, pos)
	if err != nil {
		return core.ErrPersistence("upserting unit").WithCause(err)
	}
	return commit(tx)
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return core.ErrPersistence("committing transaction").WithCause(err)
	}
	return nil
}

func (s *SQLiteStore) checkParent(ctx context.Context, tx *sql.Tx, ref core.UnitRef) error {
	var query string
	var args []any
	var resource, id string
	switch refDepth(ref) {
	case 1:
		query = "SELECT 1 FROM requests WHERE id = ?"
		args = []any{ref.RequestID}
		resource, id = "request", ref.RequestID
	case 2:
		query = "SELECT 1 FROM units WHERE request_id = ? AND task_id = ? AND subtask_id = '' AND step_id = ''"
		args = []any{ref.RequestID, ref.TaskID}
		resource, id = "task", ref.String()
	default:
		query = "SELECT 1 FROM units WHERE request_id = ? AND task_id = ? AND subtask_id = ? AND step_id = ''"
		args = []any{ref.RequestID, ref.TaskID, ref.SubtaskID}
		resource, id = "subtask", ref.String()
	}
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return core.ErrNotFound(resource, id)
	}
	if err != nil {
		return core.ErrPersistence("checking parent unit").WithCause(err)
	}
	return nil
}

func (s *SQLiteStore) nextPosition(ctx context.Context, tx *sql.Tx, ref core.UnitRef) (int, error) {
	var query string
	var args []any
	switch refDepth(ref) {
	case 1:
		query = `SELECT COALESCE(MAX(position)+1, 0) FROM units
			WHERE request_id = ? AND subtask_id = '' AND step_id = ''`
		args = []any{ref.RequestID}
	case 2:
		query = `SELECT COALESCE(MAX(position)+1, 0) FROM units
			WHERE request_id = ? AND task_id = ? AND subtask_id <> '' AND step_id = ''`
		args = []any{ref.RequestID, ref.TaskID}
	default:
		query = `SELECT COALESCE(MAX(position)+1, 0) FROM units
			WHERE request_id = ? AND task_id = ? AND subtask_id = ? AND step_id <> ''`
		args = []any{ref.RequestID, ref.TaskID, ref.SubtaskID}
	}
	var pos int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&pos); err != nil {
		return 0, core.ErrPersistence("computing unit position").WithCause(err)
	}
	return pos, nil
}

// SetStatus updates an existing unit's status.
func (s *SQLiteStore) SetStatus(ctx context.Context, ref core.UnitRef, status core.Status) error {
	return s.PutUnit(ctx, ref, "", "", status)
}

// SetDescription rewrites a task's description.
func (s *SQLiteStore) SetDescription(ctx context.Context, ref core.UnitRef, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE units SET description = ?
		WHERE request_id = ? AND task_id = ? AND subtask_id = '' AND step_id = ''
	`, description, ref.RequestID, ref.TaskID)
	if err != nil {
		return core.ErrPersistence("updating task description").WithCause(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrNotFound("task", ref.String())
	}
	return nil
}

// AppendAction appends to a step's action log.
func (s *SQLiteStore) AppendAction(ctx context.Context, ref core.UnitRef, action core.Action) error {
	return s.appendAction(ctx, ref, action, "step")
}

// AppendRagAction appends to a task's rag_actions log.
func (s *SQLiteStore) AppendRagAction(ctx context.Context, ref core.UnitRef, action core.Action) error {
	return s.appendAction(ctx, core.UnitRef{RequestID: ref.RequestID, TaskID: ref.TaskID}, action, "rag")
}

func (s *SQLiteStore) appendAction(ctx context.Context, ref core.UnitRef, action core.Action, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ErrPersistence("beginning transaction").WithCause(err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM units WHERE request_id = ? AND task_id = ? AND subtask_id = ? AND step_id = ?
	`, ref.RequestID, ref.TaskID, ref.SubtaskID, ref.StepID).Scan(&one)
	if err == sql.ErrNoRows {
		resource := "step"
		if kind == "rag" {
			resource = "task"
		}
		return core.ErrNotFound(resource, ref.String())
	}
	if err != nil {
		return core.ErrPersistence("checking unit").WithCause(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO actions (request_id, task_id, subtask_id, step_id, kind, seq, tool, command, result, context)
		VALUES (?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(seq)+1, 0) FROM actions
				WHERE request_id = ? AND task_id = ? AND subtask_id = ? AND step_id = ? AND kind = ?),
			?, ?, ?, ?)
	`, ref.RequestID, ref.TaskID, ref.SubtaskID, ref.StepID, kind,
		ref.RequestID, ref.TaskID, ref.SubtaskID, ref.StepID, kind,
		action.Tool, action.Command, action.Result, action.Context)
	if err != nil {
		return core.ErrPersistence("appending action").WithCause(err)
	}
	return commit(tx)
}

// ClearSubtree removes the unit's descendant state.
func (s *SQLiteStore) ClearSubtree(ctx context.Context, ref core.UnitRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.ErrPersistence("beginning transaction").WithCause(err)
	}
	defer func() { _ = tx.Rollback() }()

	switch refDepth(ref) {
	case 0:
		if _, err := tx.ExecContext(ctx, "DELETE FROM units WHERE request_id = ?", ref.RequestID); err != nil {
			return core.ErrPersistence("clearing request units").WithCause(err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM actions WHERE request_id = ?", ref.RequestID); err != nil {
			return core.ErrPersistence("clearing request actions").WithCause(err)
		}
	case 1:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM units WHERE request_id = ? AND task_id = ? AND subtask_id <> ''
		`, ref.RequestID, ref.TaskID); err != nil {
			return core.ErrPersistence("clearing task subtasks").WithCause(err)
		}
		// rag actions belong to the task itself and survive the clear
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM actions WHERE request_id = ? AND task_id = ? AND kind = 'step'
		`, ref.RequestID, ref.TaskID); err != nil {
			return core.ErrPersistence("clearing task step actions").WithCause(err)
		}
	case 2:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM units WHERE request_id = ? AND task_id = ? AND subtask_id = ? AND step_id <> ''
		`, ref.RequestID, ref.TaskID, ref.SubtaskID); err != nil {
			return core.ErrPersistence("clearing subtask steps").WithCause(err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM actions WHERE request_id = ? AND task_id = ? AND subtask_id = ? AND kind = 'step'
		`, ref.RequestID, ref.TaskID, ref.SubtaskID); err != nil {
			return core.ErrPersistence("clearing subtask actions").WithCause(err)
		}
	default:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM actions
			WHERE request_id = ? AND task_id = ? AND subtask_id = ? AND step_id = ? AND kind = 'step'
		`, ref.RequestID, ref.TaskID, ref.SubtaskID, ref.StepID); err != nil {
			return core.ErrPersistence("clearing step actions").WithCause(err)
		}
	}
	return commit(tx)
}

// Request returns one request's subtree, or nil if absent.
func (s *SQLiteStore) Request(ctx context.Context, requestID string) (*core.RequestNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req := &core.RequestNode{Tasks: []*core.TaskNode{}}
	err := s.db.QueryRowContext(ctx,
		"SELECT content, status FROM requests WHERE id = ?", requestID).
		Scan(&req.Content, &req.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, core.ErrPersistence("reading request").WithCause(err)
	}

	tasks := map[string]*core.TaskNode{}
	subtasks := map[[2]string]*core.SubtaskNode{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, subtask_id, step_id, status, title, description
		FROM units WHERE request_id = ?
		ORDER BY length(step_id) > 0, length(subtask_id) > 0, position
	`, requestID)
	if err != nil {
		return nil, core.ErrPersistence("reading units").WithCause(err)
	}
	defer rows.Close()
	for rows.Next() {
		var taskID, subtaskID, stepID string
		var status core.Status
		var title, description string
		if err := rows.Scan(&taskID, &subtaskID, &stepID, &status, &title, &description); err != nil {
			return nil, core.ErrPersistence("scanning unit").WithCause(err)
		}
		switch {
		case subtaskID == "":
			task := &core.TaskNode{
				ID: taskID, Status: status, Title: title, Description: description,
				Subtasks: []*core.SubtaskNode{}, RagActions: []core.Action{},
			}
			tasks[taskID] = task
			req.Tasks = append(req.Tasks, task)
		case stepID == "":
			sub := &core.SubtaskNode{
				ID: subtaskID, Status: status, Title: title, Description: description,
				Steps: []*core.StepNode{},
			}
			subtasks[[2]string{taskID, subtaskID}] = sub
			if task := tasks[taskID]; task != nil {
				task.Subtasks = append(task.Subtasks, sub)
			}
		default:
			step := &core.StepNode{
				ID: stepID, Status: status, Title: title, Description: description,
				Actions: []core.Action{},
			}
			if sub := subtasks[[2]string{taskID, subtaskID}]; sub != nil {
				sub.Steps = append(sub.Steps, step)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrPersistence("iterating units").WithCause(err)
	}

	arows, err := s.db.QueryContext(ctx, `
		SELECT task_id, subtask_id, step_id, kind, tool, command, result, context
		FROM actions WHERE request_id = ?
		ORDER BY seq
	`, requestID)
	if err != nil {
		return nil, core.ErrPersistence("reading actions").WithCause(err)
	}
	defer arows.Close()
	for arows.Next() {
		var taskID, subtaskID, stepID, kind string
		var action core.Action
		if err := arows.Scan(&taskID, &subtaskID, &stepID, &kind,
			&action.Tool, &action.Command, &action.Result, &action.Context); err != nil {
			return nil, core.ErrPersistence("scanning action").WithCause(err)
		}
		if kind == "rag" {
			if task := tasks[taskID]; task != nil {
				task.RagActions = append(task.RagActions, action)
			}
			continue
		}
		sub := subtasks[[2]string{taskID, subtaskID}]
		if sub == nil {
			continue
		}
		for _, step := range sub.Steps {
			if step.ID == stepID {
				step.Actions = append(step.Actions, action)
				break
			}
		}
	}
	if err := arows.Err(); err != nil {
		return nil, core.ErrPersistence("iterating actions").WithCause(err)
	}

	return req, nil
}

// ListRequests returns all request ids in the store.
func (s *SQLiteStore) ListRequests(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM requests ORDER BY id")
	if err != nil {
		return nil, core.ErrPersistence("listing requests").WithCause(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, core.ErrPersistence("scanning request id").WithCause(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrPersistence("iterating requests").WithCause(err)
	}
	return ids, nil
}

// AppendError appends a failure record and assigns it the next error id.
func (s *SQLiteStore) AppendError(ctx context.Context, unit *core.WorkItem, message string) (core.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unitJSON, err := json.Marshal(unit)
	if err != nil {
		return core.ErrorRecord{}, core.ErrPersistence("marshaling failed unit").WithCause(err)
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO errors (unit, message) VALUES (?, ?)", string(unitJSON), message)
	if err != nil {
		return core.ErrorRecord{}, core.ErrPersistence("appending error record").WithCause(err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return core.ErrorRecord{}, core.ErrPersistence("reading error sequence").WithCause(err)
	}
	return core.ErrorRecord{
		ErrorID: core.FormatErrorID(int(seq)),
		Unit:    unit,
		Error:   message,
	}, nil
}

// Errors returns all failure records in append order.
func (s *SQLiteStore) Errors(ctx context.Context) ([]core.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT seq, unit, message FROM errors ORDER BY seq")
	if err != nil {
		return nil, core.ErrPersistence("listing error records").WithCause(err)
	}
	defer rows.Close()
	records := []core.ErrorRecord{}
	for rows.Next() {
		var seq int
		var unitJSON, message string
		if err := rows.Scan(&seq, &unitJSON, &message); err != nil {
			return nil, core.ErrPersistence("scanning error record").WithCause(err)
		}
		var unit core.WorkItem
		if err := json.Unmarshal([]byte(unitJSON), &unit); err != nil {
			return nil, core.ErrState(core.CodeStoreCorrupted, "error record unit is not valid JSON").WithCause(err)
		}
		records = append(records, core.ErrorRecord{
			ErrorID: core.FormatErrorID(seq),
			Unit:    &unit,
			Error:   message,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrPersistence("iterating error records").WithCause(err)
	}
	return records, nil
}

// Verify that SQLiteStore implements core.ExecutionStore.
var _ core.ExecutionStore = (*SQLiteStore)(nil)
