package core

import "fmt"

// CapabilityGroup bundles the collaborators serving one capability group:
// a planner that decomposes subtasks into steps, an optional scheduler for
// collaborator-driven step selection, and an optimizer for the RAG flow.
type CapabilityGroup struct {
	Planner   Responder
	Scheduler Responder
	Optimizer Responder
}

// Registry is the static mapping from capability-group and agent names to
// their implementations. Plans reference groups and agents by name; the
// registry is assembled once at startup from configuration, so an unknown
// name is a planning defect, not a wiring race.
type Registry struct {
	groups map[string]CapabilityGroup
	agents map[string]map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[string]CapabilityGroup),
		agents: make(map[string]map[string]Capability),
	}
}

// RegisterGroup adds a capability group.
func (r *Registry) RegisterGroup(name string, group CapabilityGroup) error {
	if name == "" {
		return ErrValidation("GROUP_NAME_REQUIRED", "capability group name cannot be empty")
	}
	if _, exists := r.groups[name]; exists {
		return ErrValidation("GROUP_DUPLICATE", fmt.Sprintf("capability group %q already registered", name))
	}
	r.groups[name] = group
	return nil
}

// RegisterAgent adds a capability agent under a group.
func (r *Registry) RegisterAgent(group, name string, cap Capability) error {
	if _, ok := r.groups[group]; !ok {
		return ErrState(CodeUnknownGroup, fmt.Sprintf("capability group %q not registered", group))
	}
	if r.agents[group] == nil {
		r.agents[group] = make(map[string]Capability)
	}
	if _, exists := r.agents[group][name]; exists {
		return ErrValidation("AGENT_DUPLICATE", fmt.Sprintf("capability agent %q already registered in group %q", name, group))
	}
	r.agents[group][name] = cap
	return nil
}

// Group returns the collaborators for a capability group.
func (r *Registry) Group(name string) (CapabilityGroup, error) {
	group, ok := r.groups[name]
	if !ok {
		return CapabilityGroup{}, ErrState(CodeUnknownGroup,
			fmt.Sprintf("plan references unknown capability group %q", name))
	}
	return group, nil
}

// Agent returns a capability agent by group and name.
func (r *Registry) Agent(group, name string) (Capability, error) {
	caps, ok := r.agents[group]
	if !ok {
		return nil, ErrState(CodeUnknownGroup,
			fmt.Sprintf("plan references unknown capability group %q", group))
	}
	cap, ok := caps[name]
	if !ok {
		return nil, ErrState(CodeUnknownAgent,
			fmt.Sprintf("plan references unknown agent %q in group %q", name, group))
	}
	return cap, nil
}

// Groups returns the registered group names.
func (r *Registry) Groups() []string {
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	return names
}
