package main

import (
	"github.com/spf13/cobra"
)

// clientFlags are shared by the commands that talk to a running server.
type clientFlags struct {
	server string
	apiKey string
}

func newRootCommand() *cobra.Command {
	flags := &clientFlags{}

	rootCmd := &cobra.Command{
		Use:           "jamsplit",
		Short:         "Split jam session recordings into song takes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.server, "server", "http://localhost:8080", "Base URL of the jamsplit server")
	rootCmd.PersistentFlags().StringVar(&flags.apiKey, "api-key", "", "API key sent as X-API-Key")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newUploadCommand(flags))
	rootCmd.AddCommand(newSessionsCommand(flags))

	return rootCmd
}
