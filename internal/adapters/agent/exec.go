package agent

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cascade-labs/cascade/internal/core"
	"github.com/cascade-labs/cascade/internal/logging"
)

// ExecConfig configures a subprocess-backed responder.
//
// Responder names are aliases; Path decides what actually runs, so several
// responders can share one binary with different arguments or models.
type ExecConfig struct {
	Name    string
	Path    string
	Args    []string
	Timeout time.Duration
	WorkDir string
	// ExtraEnv is applied on top of the current process environment.
	ExtraEnv map[string]string
}

// ExecResponder runs a local command per completion: the message goes to
// stdin, the reply is stdout.
type ExecResponder struct {
	config ExecConfig
	logger *logging.Logger
}

// NewExecResponder creates a subprocess responder.
func NewExecResponder(cfg ExecConfig, logger *logging.Logger) *ExecResponder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ExecResponder{config: cfg, logger: logger}
}

// Name returns the responder alias.
func (r *ExecResponder) Name() string {
	return r.config.Name
}

// Complete sends one message and blocks for the reply.
func (r *ExecResponder) Complete(ctx context.Context, message string) (string, error) {
	timeout := r.config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdPath := r.config.Path
	if cmdPath == "" {
		return "", core.ErrValidation("NO_PATH", "responder path not configured")
	}

	// Handle multi-word commands (e.g. "ollama run llama3")
	args := r.config.Args
	cmdParts := strings.Fields(cmdPath)
	if len(cmdParts) > 1 {
		cmdPath = cmdParts[0]
		args = append(append([]string{}, cmdParts[1:]...), args...)
	}

	// #nosec G204 -- command path and args come from validated config
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	if r.config.WorkDir != "" {
		cmd.Dir = r.config.WorkDir
	}
	cmd.Stdin = strings.NewReader(message)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, "CASCADE_MANAGED=true", "CASCADE_AGENT="+r.config.Name)
	for k, v := range r.config.ExtraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	r.logger.Debug("agent: executing command",
		"agent", r.config.Name,
		"path", cmdPath,
		"args", args,
		"message_length", len(message),
		"timeout", timeout,
	)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		r.logger.Error("agent: command timeout",
			"agent", r.config.Name,
			"duration", duration,
			"timeout", timeout,
			"stderr_length", stderr.Len(),
		)
		return "", core.ErrCapability("AGENT_TIMEOUT",
			fmt.Sprintf("responder %s timed out after %v", r.config.Name, timeout))
	}
	if ctx.Err() == context.Canceled {
		return "", ctx.Err()
	}
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		r.logger.Error("agent: command failed",
			"agent", r.config.Name,
			"exit_code", exitCode,
			"duration", duration,
			"stderr_preview", preview(stderr.String(), 1000),
		)
		return "", core.ErrCapability("AGENT_EXEC_FAILED",
			fmt.Sprintf("responder %s exited with code %d: %s",
				r.config.Name, exitCode, preview(stderr.String(), 200))).WithCause(err)
	}

	r.logger.Debug("agent: command completed",
		"agent", r.config.Name,
		"duration", duration,
		"reply_length", stdout.Len(),
	)
	return stdout.String(), nil
}

func preview(s string, max int) string {
	if len(s) > max {
		return s[:max] + "... [truncated]"
	}
	return s
}

var _ core.Responder = (*ExecResponder)(nil)
