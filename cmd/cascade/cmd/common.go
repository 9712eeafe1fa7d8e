package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/cascade-labs/cascade/internal/adapters/agent"
	"github.com/cascade-labs/cascade/internal/adapters/state"
	"github.com/cascade-labs/cascade/internal/config"
	"github.com/cascade-labs/cascade/internal/core"
	"github.com/cascade-labs/cascade/internal/logging"
	"github.com/cascade-labs/cascade/internal/service/workflow"
	"github.com/cascade-labs/cascade/internal/trace"
)

// app bundles everything a command needs after wiring.
type app struct {
	cfg    *config.Config
	logger *logging.Logger
	store  core.ExecutionStore
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	store, err := state.NewStore(cfg.State.Backend, cfg.State.Dir)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) close() {
	if err := state.CloseStore(a.store); err != nil {
		a.logger.Warn("closing store", "error", err.Error())
	}
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// responders builds one Responder per configured agent alias.
func (a *app) responders() (map[string]core.Responder, error) {
	out := make(map[string]core.Responder, len(a.cfg.Agents))
	for name, ac := range a.cfg.Agents {
		timeout, err := parseTimeout(ac.Timeout)
		if err != nil {
			return nil, fmt.Errorf("agent %s: invalid timeout: %w", name, err)
		}
		switch ac.Kind {
		case "http":
			out[name] = agent.NewHTTPResponder(agent.HTTPConfig{
				Name:    name,
				URL:     ac.URL,
				APIKey:  ac.APIKey,
				Model:   ac.Model,
				Timeout: timeout,
			}, a.logger.WithAgent(name))
		default:
			out[name] = agent.NewExecResponder(agent.ExecConfig{
				Name:    name,
				Path:    ac.Path,
				Args:    ac.Args,
				WorkDir: ac.WorkDir,
				Timeout: timeout,
			}, a.logger.WithAgent(name))
		}
	}
	return out, nil
}

// registry assembles the capability groups from configuration.
func (a *app) registry(responders map[string]core.Responder) (*core.Registry, error) {
	registry := core.NewRegistry()
	for name, gc := range a.cfg.Groups {
		group := core.CapabilityGroup{}
		if gc.Planner != "" {
			group.Planner = responders[gc.Planner]
		}
		if gc.Scheduler != "" {
			group.Scheduler = responders[gc.Scheduler]
		}
		if gc.Optimizer != "" {
			group.Optimizer = responders[gc.Optimizer]
		}
		if err := registry.RegisterGroup(name, group); err != nil {
			return nil, err
		}
		for _, alias := range gc.Agents {
			r, ok := responders[alias]
			if !ok {
				return nil, fmt.Errorf("group %s: agent %s is not configured", name, alias)
			}
			capability := agent.NewResponderCapability(alias, r)
			if err := registry.RegisterAgent(name, alias, capability); err != nil {
				return nil, err
			}
		}
	}
	return registry, nil
}

// workflowContext wires the full execution context from configuration.
func (a *app) workflowContext() (*workflow.Context, error) {
	responders, err := a.responders()
	if err != nil {
		return nil, err
	}
	registry, err := a.registry(responders)
	if err != nil {
		return nil, err
	}

	wc := &workflow.Context{
		Store:    a.store,
		Registry: registry,
		Planner:  responders[a.cfg.Workflow.Planner],
		Logger:   a.logger,
		Config: workflow.Config{
			CollaboratorScheduling: a.cfg.Workflow.Scheduling == "collaborator",
			Review:                 a.cfg.Workflow.Review,
			MaxParallel:            a.cfg.Workflow.MaxParallel,
			Retry:                  workflow.RetryPolicy{MaxAttempts: a.cfg.Workflow.MaxAttempts},
			MaxOptimize:            a.cfg.Workflow.MaxOptimize,
		},
	}
	if a.cfg.Workflow.Reviewer != "" {
		wc.Reviewer = responders[a.cfg.Workflow.Reviewer]
	}
	if a.cfg.Workflow.Scheduler != "" {
		wc.Scheduler = responders[a.cfg.Workflow.Scheduler]
	}
	if !quiet {
		wc.Console = trace.NewConsole(os.Stdout, 0)
	}
	return wc, nil
}

func (a *app) orchestrator() (*workflow.Orchestrator, error) {
	wc, err := a.workflowContext()
	if err != nil {
		return nil, err
	}
	if a.cfg.Workflow.Mode == "rag" {
		return workflow.NewRagOrchestrator(wc), nil
	}
	return workflow.NewOrchestrator(wc), nil
}
