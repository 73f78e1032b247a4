package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <name>",
		Short: "Delete a repository's index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Indexer.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", args[0])
			return nil
		},
	}
}
