package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/article-scraper/internal/scraper"
)

func newReprocessCmd() *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Marks terminal records for another pass",
		Long: `Moves every record in one of the given terminal statuses back to
reprocess so the next pass picks it up again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			from, err := parseTerminalStatuses(statuses)
			if err != nil {
				return err
			}
			n, err := a.Records().Reset(cmd.Context(), from)
			if err != nil {
				return fmt.Errorf("reset records: %w", err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "marked %d records for reprocessing\n", n)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", []string{string(scraper.StatusScraperFailed)},
		"terminal statuses to reset")
	return cmd
}

func parseTerminalStatuses(raw []string) ([]scraper.Status, error) {
	out := make([]scraper.Status, 0, len(raw))
	for _, s := range raw {
		status := scraper.Status(s)
		if !status.IsTerminal() {
			return nil, fmt.Errorf("%q is not a terminal status", s)
		}
		out = append(out, status)
	}
	return out, nil
}
