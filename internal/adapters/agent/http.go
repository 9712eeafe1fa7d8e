package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cascade-labs/cascade/internal/core"
	"github.com/cascade-labs/cascade/internal/logging"
)

// HTTPConfig configures an HTTP-backed responder.
type HTTPConfig struct {
	Name    string
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// HTTPResponder talks to a remote completion endpoint. The wire shape is a
// single-turn exchange: {"model", "message"} out, {"reply"} back.
type HTTPResponder struct {
	config HTTPConfig
	client *http.Client
	logger *logging.Logger
}

type completionRequest struct {
	Model   string `json:"model,omitempty"`
	Message string `json:"message"`
}

type completionReply struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

// NewHTTPResponder creates an HTTP responder.
func NewHTTPResponder(cfg HTTPConfig, logger *logging.Logger) *HTTPResponder {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPResponder{
		config: cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Name returns the responder alias.
func (r *HTTPResponder) Name() string {
	return r.config.Name
}

// Complete sends one message and blocks for the reply.
func (r *HTTPResponder) Complete(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(completionRequest{Model: r.config.Model, Message: message})
	if err != nil {
		return "", fmt.Errorf("marshaling completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.config.APIKey)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", core.ErrCapability("AGENT_UNREACHABLE",
			fmt.Sprintf("responder %s unreachable", r.config.Name)).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return "", core.ErrCapability("AGENT_READ_FAILED",
			fmt.Sprintf("reading responder %s reply", r.config.Name)).WithCause(err)
	}

	r.logger.Debug("agent: completion exchange",
		"agent", r.config.Name,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"reply_length", len(data),
	)

	if resp.StatusCode != http.StatusOK {
		return "", core.ErrCapability("AGENT_HTTP_STATUS",
			fmt.Sprintf("responder %s returned %d: %s", r.config.Name, resp.StatusCode, preview(string(data), 200)))
	}

	var reply completionReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return "", core.ErrCapability("AGENT_BAD_REPLY",
			fmt.Sprintf("responder %s reply is not valid JSON", r.config.Name)).WithCause(err)
	}
	if reply.Error != "" {
		return "", core.ErrCapability("AGENT_REMOTE_ERROR",
			fmt.Sprintf("responder %s: %s", r.config.Name, reply.Error))
	}
	return reply.Reply, nil
}

var _ core.Responder = (*HTTPResponder)(nil)
