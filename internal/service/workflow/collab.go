package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cascade-labs/cascade/internal/core"
)

// formatAttempts caps how often a malformed collaborator reply is
// retried before the exchange is given up.
const formatAttempts = 3

const correctionNote = "Your previous answer was malformed. Reply again with only the required JSON, no surrounding prose."

// completeInto sends the JSON-encoded payload to the responder and
// decodes the reply into out. Replies that cannot be parsed are retried
// with a correction note and the malformed reply appended to the
// original message.
func (c *Context) completeInto(ctx context.Context, r core.Responder, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return core.ErrInternal("encode request").WithCause(err)
	}
	message := string(body)
	var lastErr error
	var lastReply string
	for attempt := 0; attempt < formatAttempts; attempt++ {
		if attempt > 0 {
			message = string(body) + "\n\n" + correctionNote + "\n\nYour previous answer was:\n" + lastReply
		}
		reply, err := r.Complete(ctx, message)
		if err != nil {
			return err
		}
		lastReply = reply
		data, err := core.ExtractJSON(reply)
		if err != nil {
			lastErr = err
			continue
		}
		if err := json.Unmarshal(data, out); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return core.ErrPlanningFormat(fmt.Sprintf("%s reply unusable after %d attempts", r.Name(), formatAttempts)).WithCause(lastErr)
}
