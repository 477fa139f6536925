package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proctord",
		Short: "proctord - remote exam proctoring service",
		Long: `proctord runs proctored exam sessions.

Each session watches the candidate's camera, microphone, tab visibility and
answers for the duration of the exam and produces one result with the
anomalies it observed. Results are stored locally and can be inspected with
the results subcommands.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newResultsCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}
