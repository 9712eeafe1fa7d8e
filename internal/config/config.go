package config

// Config holds all application configuration.
type Config struct {
	Log      LogConfig              `mapstructure:"log"`
	Workflow WorkflowConfig         `mapstructure:"workflow"`
	State    StateConfig            `mapstructure:"state"`
	Server   ServerConfig           `mapstructure:"server"`
	Agents   map[string]AgentConfig `mapstructure:"agents"`
	Groups   map[string]GroupConfig `mapstructure:"groups"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WorkflowConfig configures workflow execution.
type WorkflowConfig struct {
	// Mode selects the execution flow: hierarchical or rag.
	Mode string `mapstructure:"mode"`
	// Scheduling selects who picks the next round: code or collaborator.
	Scheduling string `mapstructure:"scheduling"`
	// Review gates every plan behind an inspector verdict.
	Review bool `mapstructure:"review"`
	// Planner, Reviewer and Scheduler name agents used for decomposition.
	Planner   string `mapstructure:"planner"`
	Reviewer  string `mapstructure:"reviewer"`
	Scheduler string `mapstructure:"scheduler"`
	// MaxParallel caps units executed concurrently in one round.
	MaxParallel int `mapstructure:"max_parallel"`
	// MaxAttempts bounds failure/replan cycles per request. 0 means
	// unlimited, matching the keep-replanning-until-done flow.
	MaxAttempts int `mapstructure:"max_attempts"`
	// MaxOptimize bounds consecutive in-place optimizations of one rag task
	// before the failure escalates to a request replan.
	MaxOptimize int `mapstructure:"max_optimize"`
	Timeout     string `mapstructure:"timeout"`
}

// StateConfig configures state persistence.
type StateConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// ServerConfig configures the inspection API server.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AgentConfig configures a single responder.
//
// Agent names are aliases: several entries can share one binary or endpoint
// with different models or arguments.
type AgentConfig struct {
	// Kind is exec or http.
	Kind    string   `mapstructure:"kind"`
	Path    string   `mapstructure:"path"`
	Args    []string `mapstructure:"args"`
	WorkDir string   `mapstructure:"work_dir"`
	URL     string   `mapstructure:"url"`
	APIKey  string   `mapstructure:"api_key"`
	Model   string   `mapstructure:"model"`
	Timeout string   `mapstructure:"timeout"`
}

// GroupConfig wires one capability group: the collaborators that plan,
// schedule and optimize for it, and the agents plans may assign work to.
type GroupConfig struct {
	Planner   string   `mapstructure:"planner"`
	Scheduler string   `mapstructure:"scheduler"`
	Optimizer string   `mapstructure:"optimizer"`
	Agents    []string `mapstructure:"agents"`
}
