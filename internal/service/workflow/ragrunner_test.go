package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cascade-labs/cascade/internal/core"
)

const ragPlanOne = `{"task_1":{"title":"Answer","description":"answer the question","capability_group":"search","agent":["retriever"]}}`

func searchGroup(t *testing.T, c *Context, optimizer core.Responder, agent core.Capability) {
	t.Helper()
	if err := c.Registry.RegisterGroup("search", core.CapabilityGroup{Optimizer: optimizer}); err != nil {
		t.Fatalf("RegisterGroup() error = %v", err)
	}
	if err := c.Registry.RegisterAgent("search", "retriever", agent); err != nil {
		t.Fatalf("RegisterAgent() error = %v", err)
	}
}

func TestRagRequestExecutesTasksDirectly(t *testing.T) {
	c := newTestContext(t)
	c.Planner = script("planner", ragPlanOne)
	optimizer := script("optimizer", `{"description":"answer using the product docs","agent":["retriever"]}`)
	agent := &capFunc{name: "retriever", fn: func(ctx context.Context, item *core.WorkItem) (core.Action, error) {
		if item.Description != "answer using the product docs" {
			return failAction("task not optimized before execution"), nil
		}
		return successAction("found it"), nil
	}}
	searchGroup(t, c, optimizer, agent)

	if err := NewRagOrchestrator(c).Execute(context.Background(), "1", testContent); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if optimizer.callCount() != 1 {
		t.Errorf("optimizer called %d times, want 1 (once before execution)", optimizer.callCount())
	}

	node := requestNode(t, c.Store, "1")
	if node.Status != core.StatusCompleted {
		t.Errorf("request status = %s, want completed", node.Status)
	}
	task := findTask(t, node, "task_1")
	if task.Status != core.StatusCompleted {
		t.Errorf("task status = %s, want completed", task.Status)
	}
	if len(task.Subtasks) != 0 {
		t.Errorf("flat task grew %d subtasks, want none", len(task.Subtasks))
	}
	if len(task.RagActions) != 1 || task.RagActions[0].Result != core.ResultSuccess {
		t.Errorf("rag actions = %+v, want one SUCCESS", task.RagActions)
	}
}

func TestRagTaskOptimizedInPlaceOnFailure(t *testing.T) {
	c := newTestContext(t)
	c.Planner = script("planner", ragPlanOne)
	optimizer := script("optimizer", `{"description":"search the internal wiki instead","agent":["retriever"]}`)
	var runs int32
	agent := &capFunc{name: "retriever", fn: func(ctx context.Context, item *core.WorkItem) (core.Action, error) {
		if atomic.AddInt32(&runs, 1) <= 2 {
			return failAction("nothing relevant found"), nil
		}
		if item.Description != "search the internal wiki instead" {
			return failAction("description not rewritten"), nil
		}
		return successAction("found it"), nil
	}}
	searchGroup(t, c, optimizer, agent)

	if err := NewRagOrchestrator(c).Execute(context.Background(), "1", testContent); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if optimizer.callCount() != 3 {
		t.Errorf("optimizer called %d times, want 3 (pre-execution plus two failures)", optimizer.callCount())
	}
	first := optimizeRequestOf(t, optimizer.call(0))
	if first.LastError != "" {
		t.Errorf("pre-execution last_error = %q, want empty", first.LastError)
	}
	second := optimizeRequestOf(t, optimizer.call(1))
	if !strings.Contains(second.LastError, "nothing relevant found") {
		t.Errorf("optimize last_error = %q, want the failure context", second.LastError)
	}

	node := requestNode(t, c.Store, "1")
	task := findTask(t, node, "task_1")
	if task.Description != "search the internal wiki instead" {
		t.Errorf("task description = %q, want the optimized rewrite", task.Description)
	}
	if len(storeErrors(t, c.Store)) != 2 {
		t.Errorf("error log has %d records, want 2", len(storeErrors(t, c.Store)))
	}
}

func optimizeRequestOf(t *testing.T, message string) core.OptimizeRequest {
	t.Helper()
	data, err := core.ExtractJSON(message)
	if err != nil {
		t.Fatalf("optimizer message has no JSON: %v", err)
	}
	var req core.OptimizeRequest
	if uerr := json.Unmarshal(data, &req); uerr != nil {
		t.Fatalf("decoding optimize request: %v", uerr)
	}
	return req
}

func TestRagEscalatesToRequestReplanAfterBudget(t *testing.T) {
	c := newTestContext(t)
	c.Config.MaxOptimize = 1
	planner := script("planner", ragPlanOne)
	c.Planner = planner
	var runs int32
	agent := &capFunc{name: "retriever", fn: func(ctx context.Context, item *core.WorkItem) (core.Action, error) {
		if atomic.AddInt32(&runs, 1) <= 2 {
			return failAction("index unreachable"), nil
		}
		return successAction("found it"), nil
	}}
	searchGroup(t, c, script("optimizer", `{"description":"retry with the backup index","agent":["retriever"]}`), agent)

	if err := NewRagOrchestrator(c).Execute(context.Background(), "1", testContent); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// One failure-path optimization, a second failure, then a full
	// request replan.
	if planner.callCount() != 2 {
		t.Fatalf("planner called %d times, want 2", planner.callCount())
	}
	replan := planRequestOf(t, planner.call(1))
	if !strings.Contains(replan.ErrorMessage, "index unreachable") {
		t.Errorf("replan error_message = %q, want the failure context", replan.ErrorMessage)
	}

	// The replan cleared the first attempt's state.
	task := findTask(t, requestNode(t, c.Store, "1"), "task_1")
	if len(task.RagActions) != 1 || task.RagActions[0].Result != core.ResultSuccess {
		t.Errorf("rag actions after replan = %+v, want only the final SUCCESS", task.RagActions)
	}
	if len(storeErrors(t, c.Store)) != 2 {
		t.Errorf("error log has %d records, want 2", len(storeErrors(t, c.Store)))
	}
}

func TestRagFourthConsecutiveFailureEscalates(t *testing.T) {
	c := newTestContext(t) // default max_optimize of 3
	planner := script("planner", ragPlanOne)
	c.Planner = planner
	optimizer := script("optimizer", `{"description":"narrow the query","agent":["retriever"]}`)
	var runs int32
	agent := &capFunc{name: "retriever", fn: func(ctx context.Context, item *core.WorkItem) (core.Action, error) {
		if atomic.AddInt32(&runs, 1) <= 4 {
			return failAction("index unreachable"), nil
		}
		return successAction("found it"), nil
	}}
	searchGroup(t, c, optimizer, agent)

	if err := NewRagOrchestrator(c).Execute(context.Background(), "1", testContent); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Failures 1..3 re-optimize the task in place; the 4th consecutive
	// failure escalates to a full request replan.
	if planner.callCount() != 2 {
		t.Fatalf("planner called %d times, want 2", planner.callCount())
	}
	replan := planRequestOf(t, planner.call(1))
	if !strings.Contains(replan.ErrorMessage, "index unreachable") {
		t.Errorf("replan error_message = %q, want the failure context", replan.ErrorMessage)
	}
	// Four optimizer calls before escalation (pre-execution plus three
	// failure rewrites), one more for the replanned task.
	if optimizer.callCount() != 5 {
		t.Errorf("optimizer called %d times, want 5", optimizer.callCount())
	}
	if len(storeErrors(t, c.Store)) != 4 {
		t.Errorf("error log has %d records, want 4", len(storeErrors(t, c.Store)))
	}
}

func TestRagExhaustedRetryBudgetSurfacesError(t *testing.T) {
	c := newTestContext(t)
	c.Config.MaxOptimize = 1
	c.Config.Retry = RetryPolicy{MaxAttempts: 1}
	c.Planner = script("planner", ragPlanOne)
	agent := &capFunc{name: "retriever", fn: func(ctx context.Context, item *core.WorkItem) (core.Action, error) {
		return failAction("index unreachable"), nil
	}}
	searchGroup(t, c, script("optimizer", `{"description":"try again","agent":["retriever"]}`), agent)

	err := NewRagOrchestrator(c).Execute(context.Background(), "1", testContent)
	var dom *core.DomainError
	if !errors.As(err, &dom) || dom.Code != core.CodeAttemptsExceeded {
		t.Fatalf("Execute() error = %v, want %s", err, core.CodeAttemptsExceeded)
	}
	if got := agent.executed(); len(got) != 2 {
		t.Errorf("agent executed %d times, want 2 (initial plus one optimized retry)", len(got))
	}
}

func TestRagFailureCounterIsPerTask(t *testing.T) {
	c := newTestContext(t)
	c.Config.MaxOptimize = 1
	c.Planner = script("planner", `{
		"task_1":{"title":"One","description":"first","capability_group":"search","agent":["retriever"]},
		"task_2":{"title":"Two","description":"second","dep":["task_1"],"capability_group":"search","agent":["retriever"]}
	}`)
	failedOnce := map[string]bool{}
	agent := &capFunc{name: "retriever", fn: func(ctx context.Context, item *core.WorkItem) (core.Action, error) {
		if !failedOnce[item.ID] {
			failedOnce[item.ID] = true
			return failAction(item.ID + " first try failed"), nil
		}
		return successAction("ok"), nil
	}}
	searchGroup(t, c, script("optimizer", `{"description":"adjusted","agent":["retriever"]}`), agent)

	if err := NewRagOrchestrator(c).Execute(context.Background(), "1", testContent); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	// Each task spent one failure against its own budget; neither
	// escalated even though the request saw two failures in total.
	if len(storeErrors(t, c.Store)) != 2 {
		t.Errorf("error log has %d records, want 2", len(storeErrors(t, c.Store)))
	}
	node := requestNode(t, c.Store, "1")
	if node.Status != core.StatusCompleted {
		t.Errorf("request status = %s, want completed", node.Status)
	}
}
