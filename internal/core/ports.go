package core

import (
	"context"
	"encoding/json"
)

// =============================================================================
// Responder port
// =============================================================================

// Responder is the narrow message-passing contract with an external
// reasoning or execution service: one message in, one reply out. All
// planning, review, scheduling, optimization and capability traffic flows
// through this port. Replies are free text; callers are responsible for
// extracting and validating structured payloads.
//
// Responders are not deterministic: repeated calls with identical inputs
// may return different outputs, so callers must not assume structural
// stability across replans.
type Responder interface {
	// Name returns the collaborator identifier for logs and traces.
	Name() string

	// Complete sends one message and blocks for the reply.
	Complete(ctx context.Context, message string) (string, error)
}

// PlanRequest is the wire shape of a planning call.
type PlanRequest struct {
	Message         string `json:"message"`
	OriginalRequest string `json:"original_request"`
	ErrorMessage    string `json:"error_message,omitempty"`
}

// ReviewRequest is the wire shape of a plan review call.
type ReviewRequest struct {
	UserRequest string          `json:"user_request"`
	TaskGraph   json.RawMessage `json:"task_graph"`
}

// ReviewResult is a reviewer's verdict on a plan.
type ReviewResult struct {
	Review  string `json:"review"` // "YES" or "NO"
	Explain string `json:"explain"`
}

// Approved reports whether the reviewer accepted the plan.
func (r ReviewResult) Approved() bool {
	return r.Review == "YES"
}

// ScheduleRequest is the wire shape of a collaborator-driven scheduling call.
type ScheduleRequest struct {
	MainTask  string `json:"main_task"`
	PlanGraph Graph  `json:"plan_graph"`
}

// ScheduleResult carries the scheduler collaborator's choice. The populated
// field depends on the level being scheduled.
type ScheduleResult struct {
	NextTasks    []string `json:"next_tasks,omitempty"`
	NextSubtasks []string `json:"next_subtasks,omitempty"`
	NextSteps    []string `json:"next_steps,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// ForLevel returns the id list matching the scheduled level.
func (r ScheduleResult) ForLevel(level Level) []string {
	switch level {
	case LevelTask:
		return r.NextTasks
	case LevelSubtask:
		return r.NextSubtasks
	default:
		return r.NextSteps
	}
}

// OptimizeRequest is the wire shape of a RAG in-place task optimization call.
type OptimizeRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	TotalTaskGraph Graph  `json:"total_task_graph"`
	LastError      string `json:"last_error"`
}

// OptimizeResult is the rewritten task produced by an optimizer.
type OptimizeResult struct {
	Description string   `json:"description"`
	Agent       []string `json:"agent"`
}

// =============================================================================
// Capability port
// =============================================================================

// Capability runs one leaf unit of work and reports the outcome. A FAIL
// result is a normal, recoverable answer; an error return means the
// capability itself could not be invoked.
type Capability interface {
	// Name returns the capability agent identifier.
	Name() string

	// Execute runs the item and returns its action record.
	Execute(ctx context.Context, item *WorkItem) (Action, error)
}

// =============================================================================
// ExecutionStore port
// =============================================================================

// ExecutionStore owns all access to the persisted execution tree and error
// log. Implementations serialize writers internally; every mutation is
// durable before the call returns.
type ExecutionStore interface {
	// InitRequest creates or resets the root node for a request.
	InitRequest(ctx context.Context, requestID, content string) error

	// PutUnit creates or updates a unit (status, and title/description when
	// non-empty). Parents must already exist.
	PutUnit(ctx context.Context, ref UnitRef, title, description string, status Status) error

	// SetStatus updates an existing unit's status.
	SetStatus(ctx context.Context, ref UnitRef, status Status) error

	// SetDescription rewrites a task's description.
	SetDescription(ctx context.Context, ref UnitRef, description string) error

	// AppendAction appends to a step's action log.
	AppendAction(ctx context.Context, ref UnitRef, action Action) error

	// AppendRagAction appends to a task's rag_actions log.
	AppendRagAction(ctx context.Context, ref UnitRef, action Action) error

	// ClearSubtree removes the unit's descendant state. Completed siblings
	// elsewhere in the tree are never affected.
	ClearSubtree(ctx context.Context, ref UnitRef) error

	// Request returns one request's subtree, or nil if absent.
	Request(ctx context.Context, requestID string) (*RequestNode, error)

	// ListRequests returns all request ids in the tree document.
	ListRequests(ctx context.Context) ([]string, error)

	// AppendError appends a failure record and assigns it the next error id.
	AppendError(ctx context.Context, unit *WorkItem, message string) (ErrorRecord, error)

	// Errors returns all failure records in append order.
	Errors(ctx context.Context) ([]ErrorRecord, error)
}
