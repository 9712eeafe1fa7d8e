package core

import "fmt"

// Level identifies a tier of the decomposition hierarchy.
type Level string

const (
	LevelRequest Level = "request"
	LevelTask    Level = "task"
	LevelSubtask Level = "subtask"
	LevelStep    Level = "step"
)

// Finer returns the next level down the hierarchy.
func (l Level) Finer() Level {
	switch l {
	case LevelRequest:
		return LevelTask
	case LevelTask:
		return LevelSubtask
	case LevelSubtask:
		return LevelStep
	default:
		return LevelStep
	}
}

// IsLeaf reports whether items at this level are executed directly by a
// capability instead of being decomposed further.
func (l Level) IsLeaf() bool {
	return l == LevelStep
}

// Status represents the persisted state of a unit of work.
//
// There is no failed status: failure is an event that clears the unit's
// subtree and re-triggers planning, never a terminal state on the unit.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
)

// ResultSuccess and ResultFail are the only values a capability may report.
const (
	ResultSuccess = "SUCCESS"
	ResultFail    = "FAIL"
)

// WorkItem is one unit of work at any level of the hierarchy, as produced
// by a planner. IDs are unique only within the item's sibling graph.
type WorkItem struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Dependencies    []string `json:"dep"`
	CapabilityGroup string   `json:"capability_group,omitempty"`
	Agents          []string `json:"agent,omitempty"`

	// Level is assigned by the runner that owns the item; planners do not
	// report it on the wire.
	Level Level `json:"-"`
}

// Validate checks item invariants.
func (it *WorkItem) Validate() error {
	if it.ID == "" {
		return ErrValidation("ITEM_ID_REQUIRED", "work item id cannot be empty")
	}
	if it.Title == "" {
		return ErrValidation("ITEM_TITLE_REQUIRED",
			fmt.Sprintf("work item %s has no title", it.ID))
	}
	return nil
}

// Action is one execution-result record in a unit's append-only audit log.
type Action struct {
	Tool    string `json:"tool,omitempty"`
	Command string `json:"command,omitempty"`
	Result  string `json:"result"`
	Context string `json:"context"`
}

// Succeeded reports whether the action's result is SUCCESS.
func (a Action) Succeeded() bool {
	return a.Result == ResultSuccess
}

// ValidateResult rejects result values other than SUCCESS or FAIL.
func (a Action) ValidateResult() error {
	if a.Result != ResultSuccess && a.Result != ResultFail {
		return ErrCapability(CodeUnknownResult,
			fmt.Sprintf("unknown capability result %q", a.Result))
	}
	return nil
}
