package workflow

import (
	"context"
	"sort"

	"github.com/cascade-labs/cascade/internal/core"
)

// nextReady picks the round's ready set. Code scheduling computes it from
// dependency edges; collaborator scheduling asks the scheduler agent and
// filters its answer back down to the dependency-satisfied remainder, so a
// confused collaborator can never schedule a unit ahead of its inputs.
//
// An empty result is the level's termination signal in both modes.
func (c *Context) nextReady(ctx context.Context, level core.Level, mainTask string, g core.Graph, completed map[string]bool, scheduler core.Responder) ([]string, error) {
	if !c.Config.CollaboratorScheduling {
		return core.Ready(g, completed), nil
	}
	if scheduler == nil {
		scheduler = c.Scheduler
	}
	if scheduler == nil {
		return core.Ready(g, completed), nil
	}

	eligible := core.Ready(g, completed)
	if len(eligible) == 0 {
		return nil, nil
	}

	req := core.ScheduleRequest{MainTask: mainTask, PlanGraph: g}
	var res core.ScheduleResult
	if err := c.completeInto(ctx, scheduler, req, &res); err != nil {
		if core.IsCategory(err, core.ErrCatPlanning) {
			// Unusable scheduling reply: abandon the exchange and fall
			// back to dependency-order scheduling for this round.
			c.Logger.Warn("scheduler reply unusable, falling back to dependency order",
				"scheduler", scheduler.Name(), "error", err.Error())
			return eligible, nil
		}
		return nil, err
	}

	allowed := make(map[string]bool, len(eligible))
	for _, id := range eligible {
		allowed[id] = true
	}
	var ready []string
	for _, id := range res.ForLevel(level) {
		if allowed[id] {
			ready = append(ready, id)
			allowed[id] = false
		}
	}
	sort.Strings(ready)
	if len(ready) == 0 {
		// The collaborator declined every eligible unit. Dependency
		// satisfaction still holds for all of them, so keep the level
		// moving rather than terminating it with work outstanding.
		return eligible, nil
	}
	if res.Reason != "" {
		c.Logger.Debug("scheduler choice", "reason", res.Reason, "ready", ready)
	}
	return ready, nil
}
