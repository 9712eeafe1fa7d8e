package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cascade-labs/cascade/internal/core"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status [request-id]",
	Short: "Show the persisted execution tree",
	Long: `Without arguments, status lists all known requests. With a request id
it prints that request's full task/subtask/step tree, including the
recorded actions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "yaml",
		"output format (yaml, json)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 0 {
		ids, err := a.store.ListRequests(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			node, err := a.store.Request(cmd.Context(), id)
			if err != nil {
				return err
			}
			if node == nil {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, node.Status, node.Content)
		}
		return nil
	}

	node, err := a.store.Request(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if node == nil {
		return core.ErrNotFound("request", args[0])
	}
	return render(cmd.OutOrStdout(), statusFormat, node)
}

func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}
