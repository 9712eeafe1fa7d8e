package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateWorkflow(&cfg.Workflow, cfg.Agents)
	v.validateState(&cfg.State)
	v.validateAgents(cfg.Agents)
	v.validateGroups(cfg.Groups, cfg.Agents)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be debug, info, warn or error")
	}
	switch cfg.Format {
	case "auto", "text", "json":
	default:
		v.addError("log.format", cfg.Format, "must be auto, text or json")
	}
}

func (v *Validator) validateWorkflow(cfg *WorkflowConfig, agents map[string]AgentConfig) {
	switch cfg.Mode {
	case "hierarchical", "rag":
	default:
		v.addError("workflow.mode", cfg.Mode, "must be hierarchical or rag")
	}
	switch cfg.Scheduling {
	case "code", "collaborator":
	default:
		v.addError("workflow.scheduling", cfg.Scheduling, "must be code or collaborator")
	}
	if cfg.MaxParallel < 1 {
		v.addError("workflow.max_parallel", cfg.MaxParallel, "must be at least 1")
	}
	if cfg.MaxAttempts < 0 {
		v.addError("workflow.max_attempts", cfg.MaxAttempts, "must be zero (unlimited) or positive")
	}
	if cfg.MaxOptimize < 1 {
		v.addError("workflow.max_optimize", cfg.MaxOptimize, "must be at least 1")
	}
	if cfg.Planner == "" {
		v.addError("workflow.planner", cfg.Planner, "a planner agent is required")
	} else if _, ok := agents[cfg.Planner]; !ok {
		v.addError("workflow.planner", cfg.Planner, "references an undefined agent")
	}
	if cfg.Review && cfg.Reviewer == "" {
		v.addError("workflow.reviewer", cfg.Reviewer, "review is on but no reviewer agent is set")
	}
	if cfg.Reviewer != "" {
		if _, ok := agents[cfg.Reviewer]; !ok {
			v.addError("workflow.reviewer", cfg.Reviewer, "references an undefined agent")
		}
	}
	if cfg.Scheduling == "collaborator" && cfg.Scheduler == "" {
		v.addError("workflow.scheduler", cfg.Scheduler, "collaborator scheduling needs a scheduler agent")
	}
	if cfg.Scheduler != "" {
		if _, ok := agents[cfg.Scheduler]; !ok {
			v.addError("workflow.scheduler", cfg.Scheduler, "references an undefined agent")
		}
	}
	if cfg.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Timeout); err != nil {
			v.addError("workflow.timeout", cfg.Timeout, "must be a duration like 30m or 2h")
		}
	}
}

func (v *Validator) validateState(cfg *StateConfig) {
	switch cfg.Backend {
	case "json", "sqlite":
	default:
		v.addError("state.backend", cfg.Backend, "must be json or sqlite")
	}
	if cfg.Dir == "" {
		v.addError("state.dir", cfg.Dir, "cannot be empty")
	}
}

func (v *Validator) validateAgents(agents map[string]AgentConfig) {
	for name, agent := range agents {
		field := "agents." + name
		switch agent.Kind {
		case "exec", "":
			if agent.Path == "" {
				v.addError(field+".path", agent.Path, "exec agents need a command path")
			}
		case "http":
			if agent.URL == "" {
				v.addError(field+".url", agent.URL, "http agents need a url")
			}
		default:
			v.addError(field+".kind", agent.Kind, "must be exec or http")
		}
		if agent.Timeout != "" {
			if _, err := time.ParseDuration(agent.Timeout); err != nil {
				v.addError(field+".timeout", agent.Timeout, "must be a duration like 5m")
			}
		}
	}
}

func (v *Validator) validateGroups(groups map[string]GroupConfig, agents map[string]AgentConfig) {
	for name, group := range groups {
		field := "groups." + name
		if group.Planner == "" {
			v.addError(field+".planner", group.Planner, "every group needs a planner agent")
		}
		for role, alias := range map[string]string{
			"planner": group.Planner, "scheduler": group.Scheduler, "optimizer": group.Optimizer,
		} {
			if alias == "" {
				continue
			}
			if _, ok := agents[alias]; !ok {
				v.addError(field+"."+role, alias, "references an undefined agent")
			}
		}
		if len(group.Agents) == 0 {
			v.addError(field+".agents", group.Agents, "every group needs at least one executing agent")
		}
		for _, alias := range group.Agents {
			if _, ok := agents[alias]; !ok {
				v.addError(field+".agents", alias, "references an undefined agent")
			}
		}
	}
}
