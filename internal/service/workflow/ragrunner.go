package workflow

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cascade-labs/cascade/internal/core"
)

// RagRunner drives the flat decomposition: the request is planned into a
// single task graph and every task is executed directly by its capability
// agent, with no subtask or step levels underneath.
//
// Each task is refined in place by its group's optimizer before it first
// runs. Recovery is local first: a failed task is re-optimized with the
// failure context and retried. Only when the optimization budget is spent
// does the failure escalate to a full request replan.
type RagRunner struct {
	*Context
}

// NewRagRunner creates a flat runner over the shared context.
func NewRagRunner(c *Context) *RagRunner {
	return &RagRunner{Context: c}
}

// RunRequest executes one flat request decomposition. Semantics of the
// return values match Runner.RunRequest.
func (r *RagRunner) RunRequest(ctx context.Context, requestID, content, errMsg string) (string, error) {
	root := &core.WorkItem{
		ID:          requestID,
		Title:       content,
		Description: content,
		Level:       core.LevelRequest,
	}
	parentRef := core.UnitRef{RequestID: requestID}
	log := r.Logger.WithRequest(requestID)

	g, err := r.planLevel(ctx, r.Planner, root, errMsg, core.LevelTask)
	if err != nil {
		if core.IsCategory(err, core.ErrCatPlanning) {
			return err.Error(), nil
		}
		return "", err
	}
	if err := r.registerPlan(ctx, parentRef, g); err != nil {
		return "", err
	}
	r.Console.Plan(core.LevelTask, g)
	log.Info("request planned", "tasks", len(g))

	completed := make(map[string]bool, len(g))
	round := 0
	for {
		ready, err := r.nextReady(ctx, core.LevelTask, root.Description, g, completed, nil)
		if err != nil {
			return "", err
		}
		if len(ready) == 0 {
			log.Info("request complete", "rounds", round, "tasks", len(completed))
			return "", nil
		}
		round++
		r.Console.Round(core.LevelTask, round, completed, ready, core.Pending(g, completed, ready))
		failMsg, err := r.runRound(ctx, parentRef, g, ready, completed)
		if err != nil {
			return "", err
		}
		if failMsg != "" {
			return failMsg, nil
		}
	}
}

// runRound executes one ready set of tasks concurrently, same join and
// first-failure rules as the hierarchical runner.
func (r *RagRunner) runRound(ctx context.Context, parentRef core.UnitRef, g core.Graph, ready []string, completed map[string]bool) (string, error) {
	var (
		mu      sync.Mutex
		failMsg string
		fatal   error
	)
	var eg errgroup.Group
	limit := r.Config.MaxParallel
	if limit < 1 {
		limit = 1
	}
	eg.SetLimit(limit)

	for _, id := range ready {
		item := g[id]
		ref := parentRef.Child(id)
		eg.Go(func() error {
			mu.Lock()
			stop := failMsg != "" || fatal != nil
			mu.Unlock()
			if stop {
				return nil
			}
			if err := r.Store.SetStatus(ctx, ref, core.StatusExecuting); err != nil {
				mu.Lock()
				if fatal == nil {
					fatal = err
				}
				mu.Unlock()
				return nil
			}

			msg, err := r.runTask(ctx, ref, item, g)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fatal == nil {
					fatal = err
				}
				return nil
			}
			if msg != "" {
				if failMsg == "" {
					failMsg = msg
				}
				return nil
			}
			if serr := r.Store.SetStatus(ctx, ref, core.StatusCompleted); serr != nil {
				if fatal == nil {
					fatal = serr
				}
				return nil
			}
			completed[item.ID] = true
			return nil
		})
	}
	_ = eg.Wait()
	return failMsg, fatal
}

// runTask executes one task through its capability agent with in-place
// optimization: once before the first run, then again after every failure
// while the budget lasts. The failure counter is local to the task
// attempt, so a task that eventually completes starts fresh if it is
// ever replanned.
func (r *RagRunner) runTask(ctx context.Context, ref core.UnitRef, task *core.WorkItem, g core.Graph) (string, error) {
	log := r.Logger.WithUnit(ref.String())
	if _, err := r.optimizeTask(ctx, ref, task, g, ""); err != nil {
		if !core.IsCategory(err, core.ErrCatPlanning) {
			return "", err
		}
		log.Warn("optimizer reply unusable, executing task as planned", "error", err.Error())
	}
	failures := 0
	for {
		message, err := r.executeTask(ctx, ref, task)
		if err != nil {
			return "", err
		}
		if message == "" {
			return "", nil
		}

		failures++
		if failures > r.Config.MaxOptimize {
			log.Warn("task optimization budget spent, escalating",
				"failures", failures, "error", message)
			return message, nil
		}
		applied, err := r.optimizeTask(ctx, ref, task, g, message)
		if err != nil {
			if core.IsCategory(err, core.ErrCatPlanning) {
				// The optimizer could not produce a usable rewrite;
				// retry the task as it stands.
				log.Warn("optimizer reply unusable", "error", err.Error())
				continue
			}
			return "", err
		}
		if applied {
			log.Info("task optimized, retrying", "failures", failures)
		}
	}
}

// executeTask runs the task once and records the action. A non-empty
// return message is the failure context.
func (r *RagRunner) executeTask(ctx context.Context, ref core.UnitRef, task *core.WorkItem) (string, error) {
	agent, err := r.resolveAgent(task)
	if err != nil {
		return r.recordTaskFailure(ctx, ref, task, err.Error())
	}
	action, err := agent.Execute(ctx, task)
	if err != nil {
		if core.IsCategory(err, core.ErrCatPersistence) {
			return "", err
		}
		return r.recordTaskFailure(ctx, ref, task, err.Error())
	}
	if err := action.ValidateResult(); err != nil {
		return r.recordTaskFailure(ctx, ref, task, err.Error())
	}
	if err := r.Store.AppendRagAction(ctx, ref, action); err != nil {
		return "", err
	}
	r.Console.Result(ref, action)
	if action.Succeeded() {
		return "", nil
	}
	return r.recordTaskFailure(ctx, ref, task, action.Context)
}

// optimizeTask asks the group's optimizer for a rewritten description and
// agent assignment and applies both in memory and in the store. Groups
// without an optimizer leave the task as planned.
func (r *RagRunner) optimizeTask(ctx context.Context, ref core.UnitRef, task *core.WorkItem, g core.Graph, lastError string) (bool, error) {
	optimizer := r.resolveOptimizer(task)
	if optimizer == nil {
		return false, nil
	}
	req := core.OptimizeRequest{
		Title:          task.Title,
		Description:    task.Description,
		TotalTaskGraph: g,
		LastError:      lastError,
	}
	var res core.OptimizeResult
	if err := r.completeInto(ctx, optimizer, req, &res); err != nil {
		return false, err
	}
	if res.Description == "" {
		return false, core.ErrPlanningFormat(fmt.Sprintf("optimizer %s returned an empty description", optimizer.Name()))
	}
	task.Description = res.Description
	if len(res.Agent) > 0 {
		task.Agents = res.Agent
	}
	return true, r.Store.SetDescription(ctx, ref, res.Description)
}

func (r *RagRunner) resolveOptimizer(task *core.WorkItem) core.Responder {
	if task.CapabilityGroup == "" {
		return nil
	}
	group, err := r.Registry.Group(task.CapabilityGroup)
	if err != nil {
		return nil
	}
	return group.Optimizer
}

func (r *RagRunner) resolveAgent(task *core.WorkItem) (core.Capability, error) {
	if task.CapabilityGroup == "" {
		return nil, core.ErrState(core.CodeUnknownGroup,
			fmt.Sprintf("task %s has no capability group", task.ID))
	}
	if len(task.Agents) == 0 {
		return nil, core.ErrState(core.CodeUnknownAgent,
			fmt.Sprintf("task %s names no agent", task.ID))
	}
	return r.Registry.Agent(task.CapabilityGroup, task.Agents[0])
}

func (r *RagRunner) recordTaskFailure(ctx context.Context, ref core.UnitRef, task *core.WorkItem, message string) (string, error) {
	rec, err := r.Store.AppendError(ctx, task, message)
	if err != nil {
		return "", err
	}
	r.Console.Failure(ref, rec)
	return message, nil
}
