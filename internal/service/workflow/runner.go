package workflow

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/cascade-labs/cascade/internal/core"
)

// Runner drives the hierarchical decomposition: each non-leaf unit is
// planned into a finer-level sibling graph, the graph is executed in
// dependency-ordered rounds, and failed units are cleared and replanned by
// their caller with the accumulated error text.
type Runner struct {
	*Context
}

// NewRunner creates a hierarchical runner over the shared context.
func NewRunner(c *Context) *Runner {
	return &Runner{Context: c}
}

// RunRequest executes one full request decomposition. A non-empty failMsg
// means the request failed recoverably and may be replanned by the caller;
// a non-nil error is fatal to the request.
func (r *Runner) RunRequest(ctx context.Context, requestID, content, errMsg string) (failMsg string, err error) {
	root := &core.WorkItem{
		ID:          requestID,
		Title:       content,
		Description: content,
		Level:       core.LevelRequest,
	}
	return r.runLevel(ctx, core.UnitRef{RequestID: requestID}, root, errMsg)
}

// collaboratorsFor resolves the planner and scheduler serving one level.
// Steps are planned and scheduled by the parent subtask's capability
// group; coarser levels use the workflow collaborators.
func (r *Runner) collaboratorsFor(parent *core.WorkItem, childLevel core.Level) (core.Responder, core.Responder, error) {
	if childLevel != core.LevelStep {
		return r.Planner, r.Scheduler, nil
	}
	if parent.CapabilityGroup == "" {
		return nil, nil, core.ErrState(core.CodeUnknownGroup,
			fmt.Sprintf("subtask %s names no capability group", parent.ID))
	}
	group, err := r.Registry.Group(parent.CapabilityGroup)
	if err != nil {
		return nil, nil, err
	}
	return group.Planner, group.Scheduler, nil
}

// runLevel plans and executes one unit's child level to completion. It
// returns a failure message when a child unit fails and the level must be
// replanned by the caller, or an error for fatal conditions.
func (r *Runner) runLevel(ctx context.Context, parentRef core.UnitRef, parent *core.WorkItem, errMsg string) (string, error) {
	childLevel := parent.Level.Finer()
	log := r.Logger.WithUnit(parentRef.String()).WithLevel(string(childLevel))

	planner, scheduler, err := r.collaboratorsFor(parent, childLevel)
	if err != nil {
		if core.IsCategory(err, core.ErrCatState) {
			// The plan named a group we do not have. Recoverable: the
			// caller replans with this message folded in.
			return err.Error(), nil
		}
		return "", err
	}

	g, err := r.planLevel(ctx, planner, parent, errMsg, childLevel)
	if err != nil {
		if core.IsCategory(err, core.ErrCatPlanning) {
			return err.Error(), nil
		}
		return "", err
	}
	if childLevel == core.LevelStep {
		for _, item := range g {
			if item.CapabilityGroup == "" {
				item.CapabilityGroup = parent.CapabilityGroup
			}
		}
	}
	if err := r.registerPlan(ctx, parentRef, g); err != nil {
		return "", err
	}
	r.Console.Plan(childLevel, g)
	log.Info("level planned", "units", len(g))

	completed := make(map[string]bool, len(g))
	round := 0
	for {
		ready, err := r.nextReady(ctx, childLevel, parent.Description, g, completed, scheduler)
		if err != nil {
			return "", err
		}
		if len(ready) == 0 {
			log.Info("level complete", "rounds", round, "completed", len(completed))
			return "", nil
		}
		round++
		r.Console.Round(childLevel, round, completed, ready, core.Pending(g, completed, ready))
		failMsg, err := r.runRound(ctx, parentRef, g, ready, completed)
		if err != nil {
			return "", err
		}
		if failMsg != "" {
			log.Info("level failed", "round", round, "error", failMsg)
			return failMsg, nil
		}
	}
}

// runRound executes one ready set concurrently and joins before returning.
// The first failure stops further units from starting; units already
// running finish and record their outcomes, so a failed round keeps its
// successes.
func (r *Runner) runRound(ctx context.Context, parentRef core.UnitRef, g core.Graph, ready []string, completed map[string]bool) (string, error) {
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

			msg, err := r.runUnit(ctx, ref, item)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if fatal == nil {
					fatal = err
				}
				return nil
			}
			if msg != "" {
				if cerr := r.Store.ClearSubtree(ctx, ref); cerr != nil {
					if fatal == nil {
						fatal = cerr
					}
					return nil
				}
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

// runUnit executes one unit. Leaves run their capability directly;
// non-leaf units run their child level inside a replan ring that clears
// the unit's subtree and retries with the accumulated error until the
// retry policy is exhausted.
func (r *Runner) runUnit(ctx context.Context, ref core.UnitRef, item *core.WorkItem) (string, error) {
	if item.Level.IsLeaf() {
		return r.executeStep(ctx, ref, item)
	}
	var errMsg string
	attempts := 0
	for {
		failMsg, err := r.runLevel(ctx, ref, item, errMsg)
		if err != nil {
			return "", err
		}
		if failMsg == "" {
			return "", nil
		}
		attempts++
		errMsg = accumulate(errMsg, failMsg)
		if r.Config.Retry.Exhausted(attempts) {
			r.Logger.WithUnit(ref.String()).Warn("retry budget exhausted",
				"attempts", attempts, "error", failMsg)
			return errMsg, nil
		}
		r.Logger.WithUnit(ref.String()).Info("unit failed, replanning",
			"attempt", attempts, "error", failMsg)
		if err := r.Store.ClearSubtree(ctx, ref); err != nil {
			return "", err
		}
	}
}

// executeStep runs one leaf through its capability agent. A FAIL result or
// an invocation error is recorded in the error log and returned as the
// step's failure message.
func (r *Runner) executeStep(ctx context.Context, ref core.UnitRef, step *core.WorkItem) (string, error) {
	agent, err := r.resolveAgent(step)
	if err != nil {
		return r.recordStepFailure(ctx, ref, step, err.Error())
	}

	action, err := agent.Execute(ctx, step)
	if err != nil {
		if core.IsCategory(err, core.ErrCatPersistence) {
			return "", err
		}
		return r.recordStepFailure(ctx, ref, step, err.Error())
	}
	if err := action.ValidateResult(); err != nil {
		return r.recordStepFailure(ctx, ref, step, err.Error())
	}
	if err := r.Store.AppendAction(ctx, ref, action); err != nil {
		return "", err
	}
	r.Console.Result(ref, action)
	if action.Succeeded() {
		return "", nil
	}
	return r.recordStepFailure(ctx, ref, step, action.Context)
}

// resolveAgent finds the capability agent executing a leaf. The first
// listed agent name is used.
func (r *Runner) resolveAgent(step *core.WorkItem) (core.Capability, error) {
	if step.CapabilityGroup == "" {
		return nil, core.ErrState(core.CodeUnknownGroup,
			fmt.Sprintf("step %s has no capability group", step.ID))
	}
	if len(step.Agents) == 0 {
		return nil, core.ErrState(core.CodeUnknownAgent,
			fmt.Sprintf("step %s names no agent", step.ID))
	}
	return r.Registry.Agent(step.CapabilityGroup, step.Agents[0])
}

func (r *Runner) recordStepFailure(ctx context.Context, ref core.UnitRef, step *core.WorkItem, message string) (string, error) {
	rec, err := r.Store.AppendError(ctx, step, message)
	if err != nil {
		return "", err
	}
	r.Console.Failure(ref, rec)
	r.Logger.WithUnit(ref.String()).Warn("step failed",
		"error_id", rec.ErrorID, "error", message)
	return message, nil
}
