package main

import (
	"github.com/spf13/cobra"
)

func newListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the sources and departments in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer a.log.Sync()

			printCatalog(a.out, a.registry.List())
			return nil
		},
	}
}
