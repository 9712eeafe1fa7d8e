package core

import "fmt"

// The execution tree is the durable record of one request's task/subtask/
// step hierarchy. It is the single source of truth for what has been done
// so far and must be re-derivable after a crash from its persisted form.
//
// Document layout, keyed by request id:
//
//	{"1": {"content": ..., "status": ...,
//	  "tasks": [{"id","status","title","description",
//	    "subtasks": [{"id","status","title","description",
//	      "steps": [{"id","status","title","description","actions":[...]}]}],
//	    "rag_actions": [...]}]}}

// Tree is a full execution-tree document.
type Tree map[string]*RequestNode

// RequestNode is the root of one request's hierarchy.
type RequestNode struct {
	Content string      `json:"content"`
	Status  Status      `json:"status"`
	Tasks   []*TaskNode `json:"tasks"`
}

// TaskNode is one task under a request.
type TaskNode struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Subtasks    []*SubtaskNode `json:"subtasks"`
	RagActions  []Action       `json:"rag_actions"`
}

// SubtaskNode is one subtask under a task.
type SubtaskNode struct {
	ID          string      `json:"id"`
	Status      Status      `json:"status"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Steps       []*StepNode `json:"steps"`
}

// StepNode is one leaf step under a subtask.
type StepNode struct {
	ID          string   `json:"id"`
	Status      Status   `json:"status"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Actions     []Action `json:"actions"`
}

// UnitRef addresses one unit in the tree. Deeper ids are only meaningful
// when every coarser id is set; a ref with only RequestID set addresses the
// request root.
type UnitRef struct {
	RequestID string `json:"request_id"`
	TaskID    string `json:"task_id,omitempty"`
	SubtaskID string `json:"subtask_id,omitempty"`
	StepID    string `json:"step_id,omitempty"`
}

// String renders the ref as a /-joined path for logs and error records.
func (r UnitRef) String() string {
	s := r.RequestID
	for _, part := range []string{r.TaskID, r.SubtaskID, r.StepID} {
		if part == "" {
			break
		}
		s += "/" + part
	}
	return s
}

// Child returns a ref one level deeper.
func (r UnitRef) Child(id string) UnitRef {
	switch {
	case r.TaskID == "":
		r.TaskID = id
	case r.SubtaskID == "":
		r.SubtaskID = id
	default:
		r.StepID = id
	}
	return r
}

// InitRequest creates (or resets) the root node for a request.
func (t Tree) InitRequest(requestID, content string) {
	t[requestID] = &RequestNode{
		Content: content,
		Status:  StatusExecuting,
		Tasks:   []*TaskNode{},
	}
}

func (t Tree) request(id string) (*RequestNode, error) {
	req, ok := t[id]
	if !ok {
		return nil, ErrNotFound("request", id)
	}
	return req, nil
}

func (n *RequestNode) task(id string) *TaskNode {
	for _, task := range n.Tasks {
		if task.ID == id {
			return task
		}
	}
	return nil
}

func (n *TaskNode) subtask(id string) *SubtaskNode {
	for _, sub := range n.Subtasks {
		if sub.ID == id {
			return sub
		}
	}
	return nil
}

func (n *SubtaskNode) step(id string) *StepNode {
	for _, st := range n.Steps {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// PutUnit creates the addressed unit if absent, or updates its status (and
// title/description when non-empty) if present. Parents must already exist.
func (t Tree) PutUnit(ref UnitRef, title, description string, status Status) error {
	req, err := t.request(ref.RequestID)
	if err != nil {
		return err
	}
	if ref.TaskID == "" {
		req.Status = status
		return nil
	}
	task := req.task(ref.TaskID)
	if ref.SubtaskID == "" {
		if task == nil {
			req.Tasks = append(req.Tasks, &TaskNode{
				ID: ref.TaskID, Status: status, Title: title, Description: description,
				Subtasks: []*SubtaskNode{}, RagActions: []Action{},
			})
			return nil
		}
		task.Status = status
		if title != "" {
			task.Title = title
		}
		if description != "" {
			task.Description = description
		}
		return nil
	}
	if task == nil {
		return ErrNotFound("task", ref.String())
	}
	sub := task.subtask(ref.SubtaskID)
	if ref.StepID == "" {
		if sub == nil {
			task.Subtasks = append(task.Subtasks, &SubtaskNode{
				ID: ref.SubtaskID, Status: status, Title: title, Description: description,
				Steps: []*StepNode{},
			})
			return nil
		}
		sub.Status = status
		if title != "" {
			sub.Title = title
		}
		if description != "" {
			sub.Description = description
		}
		return nil
	}
	if sub == nil {
		return ErrNotFound("subtask", ref.String())
	}
	step := sub.step(ref.StepID)
	if step == nil {
		sub.Steps = append(sub.Steps, &StepNode{
			ID: ref.StepID, Status: status, Title: title, Description: description,
			Actions: []Action{},
		})
		return nil
	}
	step.Status = status
	if title != "" {
		step.Title = title
	}
	if description != "" {
		step.Description = description
	}
	return nil
}

// SetStatus updates the addressed unit's status. The unit must exist.
func (t Tree) SetStatus(ref UnitRef, status Status) error {
	return t.PutUnit(ref, "", "", status)
}

// SetDescription rewrites the addressed task's description (RAG in-place
// optimization rewrites the task before retrying it).
func (t Tree) SetDescription(ref UnitRef, description string) error {
	req, err := t.request(ref.RequestID)
	if err != nil {
		return err
	}
	task := req.task(ref.TaskID)
	if task == nil {
		return ErrNotFound("task", ref.String())
	}
	task.Description = description
	return nil
}

// AppendAction appends an execution record to the addressed step's audit log.
func (t Tree) AppendAction(ref UnitRef, action Action) error {
	req, err := t.request(ref.RequestID)
	if err != nil {
		return err
	}
	task := req.task(ref.TaskID)
	if task == nil {
		return ErrNotFound("task", ref.String())
	}
	sub := task.subtask(ref.SubtaskID)
	if sub == nil {
		return ErrNotFound("subtask", ref.String())
	}
	step := sub.step(ref.StepID)
	if step == nil {
		return ErrNotFound("step", ref.String())
	}
	step.Actions = append(step.Actions, action)
	return nil
}

// AppendRagAction appends an execution record to the addressed task's
// rag_actions log (flat RAG flow; tasks are executed directly).
func (t Tree) AppendRagAction(ref UnitRef, action Action) error {
	req, err := t.request(ref.RequestID)
	if err != nil {
		return err
	}
	task := req.task(ref.TaskID)
	if task == nil {
		return ErrNotFound("task", ref.String())
	}
	task.RagActions = append(task.RagActions, action)
	return nil
}

// ClearSubtree removes the addressed unit's descendant state: a request's
// tasks, a task's subtasks, a subtask's steps, or a step's actions. The
// unit itself and its completed siblings are never touched.
func (t Tree) ClearSubtree(ref UnitRef) error {
	req, err := t.request(ref.RequestID)
	if err != nil {
		return err
	}
	if ref.TaskID == "" {
		req.Tasks = []*TaskNode{}
		return nil
	}
	task := req.task(ref.TaskID)
	if task == nil {
		return ErrNotFound("task", ref.String())
	}
	if ref.SubtaskID == "" {
		task.Subtasks = []*SubtaskNode{}
		return nil
	}
	sub := task.subtask(ref.SubtaskID)
	if sub == nil {
		return ErrNotFound("subtask", ref.String())
	}
	if ref.StepID == "" {
		sub.Steps = []*StepNode{}
		return nil
	}
	step := sub.step(ref.StepID)
	if step == nil {
		return ErrNotFound("step", ref.String())
	}
	step.Actions = []Action{}
	return nil
}

// ErrorRecord is one entry in the failure log. The log is persisted as a
// document keyed by error id, so the id appears both as the key and inside
// the record.
type ErrorRecord struct {
	ErrorID string    `json:"error_id"`
	Unit    *WorkItem `json:"step"`
	Error   string    `json:"error"`
}

// FormatErrorID renders the canonical error id for a sequence number.
// Sequence numbers start at 1.
func FormatErrorID(n int) string {
	return fmt.Sprintf("error_%d", n)
}

// ParseErrorID returns the sequence number encoded in an error id, or 0
// when the id is not in canonical form.
func ParseErrorID(id string) int {
	var n int
	if _, err := fmt.Sscanf(id, "error_%d", &n); err != nil {
		return 0
	}
	return n
}
