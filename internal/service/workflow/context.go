// Package workflow executes hierarchical and flat work decompositions
// against a set of registered capability agents.
package workflow

import (
	"github.com/cascade-labs/cascade/internal/core"
	"github.com/cascade-labs/cascade/internal/logging"
	"github.com/cascade-labs/cascade/internal/trace"
)

// Config carries the tunables of a workflow run.
type Config struct {
	// CollaboratorScheduling asks a scheduling agent for the next ready
	// set instead of computing it from dependency edges.
	CollaboratorScheduling bool

	// Review gates every produced plan behind the reviewer agent.
	Review bool

	// MaxParallel bounds how many units of one round execute at once.
	MaxParallel int

	// Retry bounds replanning after unit failures. Zero means unlimited.
	Retry RetryPolicy

	// MaxOptimize bounds in-place optimization attempts per flat task
	// before the failure escalates to a request replan.
	MaxOptimize int
}

// Context bundles everything a run needs. All fields except Reviewer,
// Scheduler and Console must be set.
type Context struct {
	Store    core.ExecutionStore
	Registry *core.Registry

	// Planner decomposes requests into tasks and tasks into subtasks.
	// Step planning is delegated to the capability group's planner.
	Planner core.Responder

	// Reviewer approves or rejects produced plans. Ignored when
	// Config.Review is false.
	Reviewer core.Responder

	// Scheduler picks ready sets in collaborator mode. Capability
	// groups may override it for step scheduling.
	Scheduler core.Responder

	Logger  *logging.Logger
	Console *trace.Console
	Config  Config
}

func (c *Context) reviewing() bool {
	return c.Config.Review && c.Reviewer != nil
}

// accumulate appends a new failure message to the running error text so
// that consecutive replans see the full failure history.
func accumulate(prev, next string) string {
	if prev == "" {
		return next
	}
	return prev + "\n" + next
}
