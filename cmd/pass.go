package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPassCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pass",
		Short: "Runs one scraping pass in the foreground",
		Long: `Processes every pending and reprocess record once, waits for the pass to
finish, and prints its summary as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := a.RunPass(cmd.Context())
			if err != nil {
				return err
			}
			a.Logger().Info("pass finished",
				zap.String("run_id", summary.RunID),
				zap.Int("urls_processed", summary.URLsProcessed),
			)
			out, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return fmt.Errorf("encode summary: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}
}
