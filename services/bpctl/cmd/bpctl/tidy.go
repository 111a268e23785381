package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bptools/services/tidy"
)

func newTidyCommand() *cobra.Command {
	var opts tidy.Options

	cmd := &cobra.Command{
		Use:   "tidy",
		Short: "Run clang-tidy modernize checks over the C++ sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			opts.Stdout = cmd.OutOrStdout()
			summary, err := tidy.Run(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d files analyzed, %d failed\n", summary.Files, summary.Failures)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Sources, "sources", "sources", "C++ source tree")
	cmd.Flags().StringVar(&opts.Tool, "tool", "clang-tidy", "Analyzer binary")
	cmd.Flags().BoolVarP(&opts.Override, "override", "o", false, "modernize-use-override")
	cmd.Flags().BoolVarP(&opts.Nullptr, "null", "n", false, "modernize-use-nullptr")
	cmd.Flags().BoolVarP(&opts.Default, "default", "d", false, "modernize-use-default")
	cmd.Flags().BoolVarP(&opts.Fix, "fix", "f", false, "Apply fixes")
	return cmd
}
