package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cascade-labs/cascade/internal/core"
)

// ResponderCapability exposes a Responder as an executing agent: the work
// item goes out as JSON, the reply must carry an action record.
type ResponderCapability struct {
	name      string
	responder core.Responder
}

// NewResponderCapability wraps a responder as a capability. An empty name
// falls back to the responder's own name.
func NewResponderCapability(name string, responder core.Responder) *ResponderCapability {
	if name == "" {
		name = responder.Name()
	}
	return &ResponderCapability{name: name, responder: responder}
}

// Name returns the capability agent identifier.
func (c *ResponderCapability) Name() string {
	return c.name
}

type executeRequest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Execute runs the item and returns its action record.
func (c *ResponderCapability) Execute(ctx context.Context, item *core.WorkItem) (core.Action, error) {
	message, err := json.Marshal(executeRequest{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
	})
	if err != nil {
		return core.Action{}, fmt.Errorf("marshaling work item: %w", err)
	}

	reply, err := c.responder.Complete(ctx, string(message))
	if err != nil {
		return core.Action{}, err
	}

	payload, err := core.ExtractJSON(reply)
	if err != nil {
		return core.Action{}, core.ErrCapability("AGENT_BAD_REPLY",
			fmt.Sprintf("agent %s reply carries no action record", c.name)).WithCause(err)
	}
	var action core.Action
	if err := json.Unmarshal(payload, &action); err != nil {
		return core.Action{}, core.ErrCapability("AGENT_BAD_REPLY",
			fmt.Sprintf("agent %s action record is malformed", c.name)).WithCause(err)
	}
	if err := action.ValidateResult(); err != nil {
		return core.Action{}, err
	}
	return action, nil
}

var _ core.Capability = (*ResponderCapability)(nil)
