package cmd

import (
	"github.com/spf13/cobra"
)

var errorsFormat string

var errorsCmd = &cobra.Command{
	Use:   "errors",
	Short: "Show the recorded failure log",
	Long: `Errors prints every recorded unit failure in append order, with the
failing unit and the failure context the capability reported.`,
	RunE: runErrors,
}

func init() {
	errorsCmd.Flags().StringVar(&errorsFormat, "format", "yaml",
		"output format (yaml, json)")
	rootCmd.AddCommand(errorsCmd)
}

func runErrors(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	recs, err := a.store.Errors(cmd.Context())
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), errorsFormat, recs)
}
