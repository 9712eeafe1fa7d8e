package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	runRequestID string
	runMode      string
)

var runCmd = &cobra.Command{
	Use:   "run [request...]",
	Short: "Execute one request to completion",
	Long: `Run plans the request into a task graph and executes it through the
configured capability agents. The request text is taken from the arguments,
or from stdin when no arguments are given.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runRequestID, "id", "",
		"request id (default: generated)")
	runCmd.Flags().StringVar(&runMode, "mode", "",
		"execution mode override (hierarchical, rag)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	content := strings.TrimSpace(strings.Join(args, " "))
	if content == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("reading request from stdin: %w", err)
		}
		content = strings.TrimSpace(string(data))
	}
	if content == "" {
		return fmt.Errorf("no request given: pass it as arguments or on stdin")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	if runMode != "" {
		a.cfg.Workflow.Mode = runMode
	}

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}

	requestID := runRequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if a.cfg.Workflow.Timeout != "" {
		timeout, err := time.ParseDuration(a.cfg.Workflow.Timeout)
		if err != nil {
			return fmt.Errorf("invalid workflow timeout: %w", err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	a.logger.Info("starting request", "request", requestID, "mode", a.cfg.Workflow.Mode)
	if err := orch.Execute(ctx, requestID, content); err != nil {
		a.logger.Error("request failed", "request", requestID, "error", err.Error())
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), requestID)
	return nil
}
