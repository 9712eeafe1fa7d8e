package workflow

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/cascade-labs/cascade/internal/adapters/state"
	"github.com/cascade-labs/cascade/internal/core"
	"github.com/cascade-labs/cascade/internal/logging"
)

// respFunc adapts a function to the Responder port and records every
// message it receives.
type respFunc struct {
	name string
	fn   func(ctx context.Context, message string) (string, error)

	mu    sync.Mutex
	calls []string
}

func (r *respFunc) Name() string { return r.name }

func (r *respFunc) Complete(ctx context.Context, message string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, message)
	r.mu.Unlock()
	return r.fn(ctx, message)
}

func (r *respFunc) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *respFunc) call(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[i]
}

// script wraps canned replies as a respFunc, repeating the last reply once
// the script runs out.
func script(name string, replies ...string) *respFunc {
	var mu sync.Mutex
	n := 0
	return &respFunc{
		name: name,
		fn: func(ctx context.Context, message string) (string, error) {
			mu.Lock()
			idx := n
			n++
			mu.Unlock()
			if idx >= len(replies) {
				idx = len(replies) - 1
			}
			return replies[idx], nil
		},
	}
}

// capFunc adapts a function to the Capability port and records every item
// it executed.
type capFunc struct {
	name string
	fn   func(ctx context.Context, item *core.WorkItem) (core.Action, error)

	mu    sync.Mutex
	items []string
}

func (c *capFunc) Name() string { return c.name }

func (c *capFunc) Execute(ctx context.Context, item *core.WorkItem) (core.Action, error) {
	c.mu.Lock()
	c.items = append(c.items, item.ID)
	c.mu.Unlock()
	return c.fn(ctx, item)
}

func (c *capFunc) executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.items...)
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	store, err := state.NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONStore() error = %v", err)
	}
	return &Context{
		Store:    store,
		Registry: core.NewRegistry(),
		Logger:   logging.NewNop(),
		Config: Config{
			MaxParallel: 4,
			MaxOptimize: 3,
		},
	}
}

// planRequestOf decodes the PlanRequest a planner received, tolerating the
// correction note appended on format retries.
func planRequestOf(t *testing.T, message string) core.PlanRequest {
	t.Helper()
	var req core.PlanRequest
	data, err := core.ExtractJSON(message)
	if err != nil {
		t.Fatalf("planner message has no JSON: %v", err)
	}
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("decoding plan request: %v", err)
	}
	return req
}

// hierPlanner answers request-level planning with taskPlan and task-level
// planning with subtaskPlan, keyed off the incoming message.
func hierPlanner(t *testing.T, content, taskPlan, subtaskPlan string) *respFunc {
	p := &respFunc{name: "planner"}
	p.fn = func(ctx context.Context, message string) (string, error) {
		if planRequestOf(t, message).Message == content {
			return taskPlan, nil
		}
		return subtaskPlan, nil
	}
	return p
}

func requestNode(t *testing.T, store core.ExecutionStore, requestID string) *core.RequestNode {
	t.Helper()
	node, err := store.Request(context.Background(), requestID)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if node == nil {
		t.Fatalf("request %s not in store", requestID)
	}
	return node
}

func findTask(t *testing.T, node *core.RequestNode, id string) *core.TaskNode {
	t.Helper()
	for _, task := range node.Tasks {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not in tree", id)
	return nil
}

func storeErrors(t *testing.T, store core.ExecutionStore) []core.ErrorRecord {
	t.Helper()
	recs, err := store.Errors(context.Background())
	if err != nil {
		t.Fatalf("Errors() error = %v", err)
	}
	return recs
}

const (
	testContent = "build and ship the feature"

	taskPlanOne = `{"task_1":{"title":"Build","description":"build the thing"}}`

	subtaskPlanOne = `{"subtask_1":{"title":"Code","description":"write the code","capability_group":"dev"}}`

	stepPlanOne = `{"step_1":{"title":"Edit","description":"edit the file","agent":["coder"]}}`
)

func successAction(context string) core.Action {
	return core.Action{Tool: "shell", Command: "make", Result: core.ResultSuccess, Context: context}
}

func failAction(context string) core.Action {
	return core.Action{Tool: "shell", Command: "make", Result: core.ResultFail, Context: context}
}
