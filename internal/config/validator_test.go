package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "auto"},
		Workflow: WorkflowConfig{
			Mode:        "hierarchical",
			Scheduling:  "code",
			Review:      true,
			Planner:     "architect",
			Reviewer:    "inspector",
			MaxParallel: 4,
			MaxOptimize: 3,
			Timeout:     "2h",
		},
		State: StateConfig{Backend: "json", Dir: ".cascade/state"},
		Agents: map[string]AgentConfig{
			"architect": {Kind: "http", URL: "http://localhost:9000", Model: "planner"},
			"inspector": {Kind: "http", URL: "http://localhost:9000", Model: "reviewer"},
			"worker":    {Kind: "exec", Path: "cascade-worker"},
		},
		Groups: map[string]GroupConfig{
			"os": {Planner: "architect", Optimizer: "architect", Agents: []string{"worker"}},
		},
	}
}

func TestValidator_Valid(t *testing.T) {
	if err := NewValidator().Validate(validConfig()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "bad mode",
			mutate: func(c *Config) { c.Workflow.Mode = "waterfall" },
			field:  "workflow.mode",
		},
		{
			name:   "bad scheduling",
			mutate: func(c *Config) { c.Workflow.Scheduling = "random" },
			field:  "workflow.scheduling",
		},
		{
			name:   "missing planner",
			mutate: func(c *Config) { c.Workflow.Planner = "" },
			field:  "workflow.planner",
		},
		{
			name:   "planner not defined",
			mutate: func(c *Config) { c.Workflow.Planner = "ghost" },
			field:  "workflow.planner",
		},
		{
			name:   "review without reviewer",
			mutate: func(c *Config) { c.Workflow.Reviewer = "" },
			field:  "workflow.reviewer",
		},
		{
			name: "collaborator scheduling without scheduler",
			mutate: func(c *Config) {
				c.Workflow.Scheduling = "collaborator"
				c.Workflow.Scheduler = ""
			},
			field: "workflow.scheduler",
		},
		{
			name:   "zero parallelism",
			mutate: func(c *Config) { c.Workflow.MaxParallel = 0 },
			field:  "workflow.max_parallel",
		},
		{
			name:   "bad backend",
			mutate: func(c *Config) { c.State.Backend = "etcd" },
			field:  "state.backend",
		},
		{
			name: "exec agent without path",
			mutate: func(c *Config) {
				a := c.Agents["worker"]
				a.Path = ""
				c.Agents["worker"] = a
			},
			field: "agents.worker.path",
		},
		{
			name: "http agent without url",
			mutate: func(c *Config) {
				a := c.Agents["architect"]
				a.URL = ""
				c.Agents["architect"] = a
			},
			field: "agents.architect.url",
		},
		{
			name: "group references undefined agent",
			mutate: func(c *Config) {
				c.Groups["os"] = GroupConfig{Planner: "architect", Agents: []string{"ghost"}}
			},
			field: "groups.os.agents",
		},
		{
			name: "group without agents",
			mutate: func(c *Config) {
				c.Groups["os"] = GroupConfig{Planner: "architect"}
			},
			field: "groups.os.agents",
		},
		{
			name:   "bad timeout",
			mutate: func(c *Config) { c.Workflow.Timeout = "soon" },
			field:  "workflow.timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := NewValidator().Validate(cfg)
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %q", err, tt.field)
			}
		})
	}
}
