package main

import (
	"github.com/spf13/cobra"

	"github.com/pevans/coursefed"
)

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <file>",
		Short: "Print a saved run artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := coursefed.ReadArtifact(args[0])
			if err != nil {
				return err
			}
			printArtifact(cmd.OutOrStdout(), a)
			return nil
		},
	}
}
