package workflow

import (
	"context"
	"fmt"

	"github.com/cascade-labs/cascade/internal/core"
)

// requestRunner is the shape shared by the hierarchical and flat runners.
type requestRunner interface {
	RunRequest(ctx context.Context, requestID, content, errMsg string) (string, error)
}

// Orchestrator owns the outer recovery ring around one request: it plans
// and executes the request, and on failure clears the request subtree and
// replans with the accumulated error text until the request completes or
// the retry budget is spent.
type Orchestrator struct {
	c      *Context
	runner requestRunner
}

// NewOrchestrator builds the orchestrator for the hierarchical flow.
func NewOrchestrator(c *Context) *Orchestrator {
	return &Orchestrator{c: c, runner: NewRunner(c)}
}

// NewRagOrchestrator builds the orchestrator for the flat flow.
func NewRagOrchestrator(c *Context) *Orchestrator {
	return &Orchestrator{c: c, runner: NewRagRunner(c)}
}

// Execute runs one request to completion. The returned error is fatal;
// recoverable failures are absorbed by the replan ring.
func (o *Orchestrator) Execute(ctx context.Context, requestID, content string) error {
	if requestID == "" {
		return core.ErrValidation("REQUEST_ID_REQUIRED", "request id cannot be empty")
	}
	if content == "" {
		return core.ErrValidation("REQUEST_EMPTY", "request content cannot be empty")
	}
	if err := o.c.Store.InitRequest(ctx, requestID, content); err != nil {
		return err
	}
	log := o.c.Logger.WithRequest(requestID)
	ref := core.UnitRef{RequestID: requestID}
	o.c.Console.Rule("request " + requestID)

	var errMsg string
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		failMsg, err := o.runner.RunRequest(ctx, requestID, content, errMsg)
		if err != nil {
			return err
		}
		if failMsg == "" {
			if err := o.c.Store.SetStatus(ctx, ref, core.StatusCompleted); err != nil {
				return err
			}
			o.c.Console.Rule("request " + requestID + " completed")
			log.Info("request completed", "replans", attempts)
			return nil
		}

		attempts++
		errMsg = accumulate(errMsg, failMsg)
		if o.c.Config.Retry.Exhausted(attempts) {
			log.Error("request retry budget exhausted",
				"attempts", attempts, "error", failMsg)
			return core.ErrState(core.CodeAttemptsExceeded,
				fmt.Sprintf("request %s failed after %d attempts: %s", requestID, attempts, failMsg))
		}
		o.c.Console.Rule(fmt.Sprintf("request %s failed, replanning (attempt %d)", requestID, attempts+1))
		log.Info("request failed, replanning", "attempt", attempts, "error", failMsg)
		if err := o.c.Store.ClearSubtree(ctx, ref); err != nil {
			return err
		}
	}
}
