package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "workflowctl",
		Short:         "workflowctl resolves, instantiates, and runs a dynamic-class workflow graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newGraphCmd())

	return cmd
}
