package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cascade-labs/cascade/internal/core"
)

// planMessage builds the planning message for a parent unit. The request
// root plans from the raw request text; finer units plan from their title
// and description.
func planMessage(parent *core.WorkItem) string {
	if parent.Level == core.LevelRequest {
		return parent.Description
	}
	body, _ := json.Marshal(map[string]string{
		"title":       parent.Title,
		"description": parent.Description,
	})
	return string(body)
}

// planGraph runs one planning exchange and parses the reply into a graph.
// Malformed replies are retried with a correction note; a dangling
// dependency reference is a defect and returned immediately.
func (c *Context) planGraph(ctx context.Context, planner core.Responder, req core.PlanRequest, level core.Level) (core.Graph, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, core.ErrInternal("encode plan request").WithCause(err)
	}
	message := string(body)
	var lastErr error
	for attempt := 0; attempt < formatAttempts; attempt++ {
		if attempt > 0 {
			message = string(body) + "\n\n" + correctionNote
		}
		reply, err := planner.Complete(ctx, message)
		if err != nil {
			return nil, err
		}
		data, err := core.ExtractJSON(reply)
		if err != nil {
			lastErr = err
			continue
		}
		g, err := core.ParseGraph(data, level)
		if err != nil {
			if core.IsCategory(err, core.ErrCatDependency) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if len(g) == 0 {
			// A unit with no viable decomposition is a planning defect,
			// never a silent success.
			lastErr = core.ErrPlanningFormat("plan is empty")
			continue
		}
		return g, nil
	}
	return nil, core.ErrPlanningFormat(fmt.Sprintf("%s plan unusable after %d attempts", planner.Name(), formatAttempts)).WithCause(lastErr)
}

// planLevel produces an approved plan for one level. When review is
// enabled, rejected plans are regenerated with the reviewer's explanation
// folded into the error message until the reviewer approves.
func (c *Context) planLevel(ctx context.Context, planner core.Responder, parent *core.WorkItem, errMsg string, level core.Level) (core.Graph, error) {
	req := core.PlanRequest{
		Message:         planMessage(parent),
		OriginalRequest: parent.Description,
		ErrorMessage:    errMsg,
	}
	for {
		g, err := c.planGraph(ctx, planner, req, level)
		if err != nil {
			return nil, err
		}
		if !c.reviewing() {
			return g, nil
		}
		verdict, err := c.review(ctx, parent.Description, g)
		if err != nil {
			return nil, err
		}
		if verdict.Approved() {
			return g, nil
		}
		c.Logger.Info("plan rejected",
			"level", string(level),
			"unit", parent.ID,
			"explain", verdict.Explain)
		req.ErrorMessage = accumulate(req.ErrorMessage,
			"plan review rejected: "+verdict.Explain)
	}
}

func (c *Context) review(ctx context.Context, userRequest string, g core.Graph) (core.ReviewResult, error) {
	graphJSON, err := json.Marshal(g)
	if err != nil {
		return core.ReviewResult{}, core.ErrInternal("encode plan graph").WithCause(err)
	}
	req := core.ReviewRequest{UserRequest: userRequest, TaskGraph: graphJSON}
	var verdict core.ReviewResult
	if err := c.completeInto(ctx, c.Reviewer, req, &verdict); err != nil {
		return core.ReviewResult{}, err
	}
	return verdict, nil
}

// registerPlan records every planned child as pending under the parent.
func (c *Context) registerPlan(ctx context.Context, parentRef core.UnitRef, g core.Graph) error {
	for _, id := range g.IDs() {
		item := g[id]
		if err := c.Store.PutUnit(ctx, parentRef.Child(id), item.Title, item.Description, core.StatusPending); err != nil {
			return err
		}
	}
	return nil
}
