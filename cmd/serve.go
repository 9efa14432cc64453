package cmd

import (
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the HTTP trigger and run log API",
		Long: `Starts the HTTP server. POST /v1/scrape starts a pass in the background
and answers 202 immediately. On SIGINT or SIGTERM the server waits for the
in-flight pass, up to server.shutdown_timeout_seconds.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
