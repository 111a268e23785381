package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "bpctl",
		Short:         "Release and data tooling for BellePoule",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	cmd.AddCommand(newBundlesCommand())
	cmd.AddCommand(newPackageCommand())
	cmd.AddCommand(newTidyCommand())
	cmd.AddCommand(newXML2CotcotCommand(&verbose))
	return cmd
}
